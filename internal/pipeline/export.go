package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/retry"
)

// export copies every captured track into workDir/audio/<speaker>/ and splits
// tracks longer than the maximum segment duration into ordered parts. A
// speaker whose export fails is left out.
func (p *implPipeline) export(ctx context.Context, workDir string, tracks map[string]string) map[string][]models.AudioPart {
	opts := p.opts.Retry
	opts.Retryable = func(err error) bool {
		return !errors.Is(err, models.ErrPartialCapture) && !errors.Is(err, os.ErrNotExist)
	}

	var mu sync.Mutex
	out := make(map[string][]models.AudioPart, len(tracks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxConcurrent)
	for _, speaker := range sortedKeys(tracks) {
		src := tracks[speaker]
		g.Go(func() error {
			parts, ok := retry.Do(gctx, p.deps.Retry, "export: "+speaker, opts, func(ctx context.Context) ([]models.AudioPart, error) {
				return p.exportTrack(ctx, workDir, speaker, src)
			})
			if !ok {
				p.logger.Warn(gctx, "Skipping audio of %s: export failed", speaker)
				return nil
			}
			mu.Lock()
			out[speaker] = parts
			mu.Unlock()
			p.cleanupTempFile(gctx, src)
			return nil
		})
	}
	g.Wait()
	return out
}

func (p *implPipeline) exportTrack(ctx context.Context, workDir, speaker, src string) ([]models.AudioPart, error) {
	dir := filepath.Join(workDir, "audio", safeName(speaker))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	ext := filepath.Ext(src)
	if ext == "" {
		ext = ".ogg"
	}
	dst := filepath.Join(dir, safeName(speaker)+ext)
	if _, err := os.Stat(dst); err != nil {
		if err := copyFile(src, dst); err != nil {
			return nil, err
		}
	}

	seconds, err := p.probeDuration(ctx, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrPartialCapture, speaker, err)
	}
	if seconds <= p.opts.MaxSegment.Seconds() {
		return []models.AudioPart{{SpeakerID: speaker, Index: 0, Path: dst}}, nil
	}

	p.logger.Info(ctx, "Splitting %s audio (%.0fs) into %s parts", speaker, seconds, p.opts.MaxSegment)
	pattern := filepath.Join(dir, safeName(speaker)+"_part%03d"+ext)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", dst,
		"-f", "segment",
		"-segment_time", strconv.Itoa(int(p.opts.MaxSegment.Seconds())),
		"-c", "copy", // stream copy, no re-encode
		"-reset_timestamps", "1",
		"-y",
		pattern,
	}
	if _, err := p.deps.Executor.Execute(ctx, p.opts.FFmpegPath, args...); err != nil {
		return nil, fmt.Errorf("ffmpeg segment: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, safeName(speaker)+"_part*"+ext))
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("ffmpeg segment produced no parts for %s", speaker)
	}
	sort.Strings(matches)

	parts := make([]models.AudioPart, 0, len(matches))
	for i, m := range matches {
		parts = append(parts, models.AudioPart{SpeakerID: speaker, Index: i, Path: m})
	}
	p.cleanupTempFile(ctx, dst)
	return parts, nil
}

// probeDuration returns the duration of an audio file in seconds.
func (p *implPipeline) probeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	out, err := p.deps.Executor.Execute(ctx, p.opts.FFprobePath, args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(out), err)
	}
	return v, nil
}

// cleanupTempFile removes a file, logs warning if fails
func (p *implPipeline) cleanupTempFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn(ctx, "Failed to cleanup temp file %s: %v", path, err)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}

func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>| `, r) {
			return '_'
		}
		return r
	}, id)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
