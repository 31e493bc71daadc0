package transcriber

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

// Transcribe fans out one request per audio part, bounded by the
// transcriber-wide concurrency limit.
func (t *implTranscriber) Transcribe(ctx context.Context, parts map[string][]models.AudioPart) (map[string][]PartResult, error) {
	start := time.Now()
	total := 0
	for _, ps := range parts {
		total += len(ps)
	}
	t.logger.Info(ctx, "Transcribing %d parts from %d speakers", total, len(parts))

	var mu sync.Mutex
	results := make(map[string][]PartResult, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for speaker, ps := range parts {
		for _, part := range ps {
			speaker, part := speaker, part
			g.Go(func() error {
				if err := t.sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer t.sem.Release(1)

				segs, err := t.engine.transcribeFile(gctx, part.Path)
				if err != nil {
					if errors.Is(err, models.ErrTransient) || gctx.Err() != nil {
						return fmt.Errorf("transcribe %s: %w", part.Path, err)
					}
					t.logger.Warn(ctx, "Skipping part %s of speaker %s: %v", part.Path, speaker, err)
					return nil
				}

				mu.Lock()
				results[speaker] = append(results[speaker], PartResult{
					Part:     part,
					Segments: dropEmpty(segs),
				})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for speaker := range results {
		rs := results[speaker]
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Part.Index < rs[j].Part.Index })
	}

	t.logger.Info(ctx, "Transcription completed in %s", time.Since(start).Round(time.Millisecond))
	return results, nil
}

func dropEmpty(segs []models.RawSegment) []models.RawSegment {
	out := segs[:0]
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
