package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/metrics"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/transcriber"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/retry"
)

// fakeExecutor answers ffprobe with a fixed duration per file name and fakes
// the ffmpeg segment muxer by writing the part files.
type fakeExecutor struct {
	mu        sync.Mutex
	durations map[string]string // file name prefix -> ffprobe output
	parts     int
	commands  []string
}

func (e *fakeExecutor) Execute(_ context.Context, name string, args ...string) (string, error) {
	e.mu.Lock()
	e.commands = append(e.commands, name)
	e.mu.Unlock()

	switch name {
	case "ffprobe":
		base := filepath.Base(args[len(args)-1])
		for k, v := range e.durations {
			if strings.HasPrefix(base, k) {
				return v + "\n", nil
			}
		}
		return "", errors.New("Invalid data found when processing input")
	case "ffmpeg":
		pattern := args[len(args)-1]
		for i := 0; i < e.parts; i++ {
			if err := os.WriteFile(fmt.Sprintf(pattern, i), []byte("part"), 0644); err != nil {
				return "", err
			}
		}
	}
	return "", nil
}

func (e *fakeExecutor) ExecuteInDir(ctx context.Context, _ string, name string, args ...string) (string, error) {
	return e.Execute(ctx, name, args...)
}

func (e *fakeExecutor) LookPath(name string) (string, error) { return name, nil }

type fakeTranscriber struct {
	segments map[string][]models.RawSegment
	err      error
	calls    atomic.Int32
}

func (f *fakeTranscriber) Transcribe(_ context.Context, parts map[string][]models.AudioPart) (map[string][]transcriber.PartResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string][]transcriber.PartResult)
	for speaker, ps := range parts {
		for _, p := range ps {
			if segs := f.segments[speaker]; len(segs) > 0 {
				out[speaker] = append(out[speaker], transcriber.PartResult{Part: p, Segments: segs})
			}
		}
	}
	return out, nil
}

type fakeSummarizer struct {
	summaryErr error
	calls      atomic.Int32
}

func (f *fakeSummarizer) Summarize(context.Context, string) (string, error) {
	f.calls.Add(1)
	if f.summaryErr != nil {
		return "", f.summaryErr
	}
	return "## Summary\n- decided things", nil
}

func (f *fakeSummarizer) GenerateTitle(_ context.Context, _ string, start time.Time) (string, error) {
	f.calls.Add(1)
	return start.Format("[20060102]") + " Planning", nil
}

func (f *fakeSummarizer) GenerateTodolist(context.Context, string) (string, error) {
	f.calls.Add(1)
	return "- [ ] ship it", nil
}

type fakeUploader struct {
	mu      sync.Mutex
	batches []upload.Batch
	result  func(b upload.Batch) upload.Result
}

func (f *fakeUploader) UploadBatch(_ context.Context, b upload.Batch, _ string) upload.Result {
	f.mu.Lock()
	f.batches = append(f.batches, b)
	f.mu.Unlock()
	return f.result(b)
}

type names map[string]string

func (n names) DisplayName(id string) (string, bool) {
	v, ok := n[id]
	return v, ok
}

func testRetry() *retry.Executor {
	return retry.New(logger.NewNop(), retry.Hooks{}).WithSleeper(func(context.Context, time.Duration) error { return nil })
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func writeTrack(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("OggS"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
