package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/retry"
)

// Run orchestrates the post-recording pipeline of one session
func (p *implPipeline) Run(ctx context.Context, in Input) (Output, error) {
	p.mu.Lock()
	if p.generated[in.SessionID] {
		p.mu.Unlock()
		return Output{}, fmt.Errorf("%s: %w", in.SessionID, ErrAlreadyGenerated)
	}
	p.generated[in.SessionID] = true
	p.mu.Unlock()

	ctx = logger.WithSession(ctx, in.SessionID)
	startTime := time.Now()
	out := Output{
		RunID:   uuid.NewString(),
		WorkDir: filepath.Join(p.opts.RecordingsDir, folderName(in)),
	}

	p.logger.Info(ctx, "========================================")
	p.logger.Info(ctx, "Starting pipeline run %s for %s (%d tracks)", out.RunID, in.Name, len(in.Tracks))
	p.logger.Info(ctx, "========================================")

	// Step 1: Export captured tracks into ordered parts
	stage := time.Now()
	parts := p.export(ctx, out.WorkDir, in.Tracks)
	p.deps.Metrics.RecordStage("export", time.Since(stage))

	// Step 2: Transcribe every part in one batch
	stage = time.Now()
	transcripts := p.transcribe(ctx, in.SessionID, parts)
	p.deps.Metrics.RecordStage("transcribe", time.Since(stage))

	// Step 3: Merge into one wall-clock timeline
	out.Segments = mergeTimeline(transcripts, in.JoinTimes, in.StartTime, in.RecordingStart, p.opts.MaxSegment, p.deps.Directory)
	p.deps.Metrics.SegmentsMerged.Observe(float64(len(out.Segments)))

	// Step 4: Summary, title and to-do list
	stage = time.Now()
	if len(out.Segments) == 0 {
		p.logger.Warn(ctx, "No transcript segments, skipping generation")
		out.Results = p.emptyResults()
		report(in, out.Results)
	} else {
		transcript := formatTranscript(out.Segments)
		report(in, models.Results{Transcript: transcript})
		out.Results = p.generate(ctx, in, transcript)
	}
	p.deps.Metrics.RecordStage("generate", time.Since(stage))
	missing := p.countPlaceholders(out.Results)

	// Step 5: Persist and upload
	stage = time.Now()
	files := p.persist(ctx, out.WorkDir, in, out)
	if p.deps.Uploader != nil {
		batch := buildBatch(filepath.Base(out.WorkDir), files, parts, p.displayName)
		res := p.deps.Uploader.UploadBatch(ctx, batch, "")
		out.Upload = &res
		p.deps.Metrics.RecordUpload(res.Uploaded, len(res.Failed))
		if res.OK() {
			out.Cleaned = p.cleanup(ctx, out.WorkDir)
		} else {
			p.logger.Warn(ctx, "Upload incomplete (%d/%d), keeping %s", res.Uploaded, res.Total, out.WorkDir)
		}
	}
	p.deps.Metrics.RecordStage("persist", time.Since(stage))

	result := "complete"
	switch {
	case len(out.Segments) == 0:
		result = "empty"
	case missing > 0:
		result = "degraded"
	}
	p.deps.Metrics.PipelineRuns.WithLabelValues(result).Inc()

	p.logger.Info(ctx, "========================================")
	p.logger.Info(ctx, "Pipeline run %s finished (%s) in %s", out.RunID, result, time.Since(startTime))
	p.logger.Info(ctx, "Output folder: %s", out.WorkDir)
	p.logger.Info(ctx, "========================================")
	return out, nil
}

func (p *implPipeline) transcribe(ctx context.Context, sessionID string, parts map[string][]models.AudioPart) map[string][]partSegments {
	if len(parts) == 0 {
		return nil
	}
	opts := p.opts.Retry
	opts.Retryable = models.IsRetryable

	res, ok := retry.Do(ctx, p.deps.Retry, "transcribe: "+sessionID, opts, func(ctx context.Context) (map[string][]partSegments, error) {
		results, err := p.deps.Transcriber.Transcribe(ctx, parts)
		if err != nil {
			return nil, err
		}
		out := make(map[string][]partSegments, len(results))
		for speaker, prs := range results {
			for _, pr := range prs {
				out[speaker] = append(out[speaker], partSegments{index: pr.Part.Index, segments: pr.Segments})
			}
		}
		return out, nil
	})
	if !ok {
		p.logger.Error(ctx, "Transcription failed for all parts")
		return nil
	}
	return res
}

// emptyResults sets every output to the configured placeholder.
func (p *implPipeline) emptyResults() models.Results {
	ph := p.opts.EmptyPlaceholder
	return models.Results{Transcript: ph, Summary: ph, Todolist: ph, Title: ph}
}

func report(in Input, r models.Results) {
	if in.Progress != nil {
		in.Progress(r)
	}
}

func (p *implPipeline) displayName(memberID string) string {
	if p.deps.Directory != nil {
		if name, ok := p.deps.Directory.DisplayName(memberID); ok && name != "" {
			return name
		}
	}
	return memberID
}

// countPlaceholders records and returns how many outputs are placeholders.
func (p *implPipeline) countPlaceholders(r models.Results) int {
	fields := map[string]string{
		"transcript": r.Transcript,
		"summary":    r.Summary,
		"todolist":   r.Todolist,
		"title":      r.Title,
	}
	placeholders := map[string]string{
		"transcript": models.TranscriptUnavailable,
		"summary":    models.SummaryUnavailable,
		"todolist":   models.TodolistUnavailable,
		"title":      models.TitleUnavailable,
	}
	n := 0
	for field, v := range fields {
		if v == placeholders[field] || v == p.opts.EmptyPlaceholder {
			p.deps.Metrics.RecordPlaceholder(field)
			n++
		}
	}
	return n
}

// folderName is "<YYYYMMDD>_<session name>" with path separators removed.
func folderName(in Input) string {
	name := in.Name
	if name == "" {
		name = in.SessionID
	}
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
	start := in.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	return start.Format("20060102") + "_" + name
}
