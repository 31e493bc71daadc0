package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
)

type fixture struct {
	exec *fakeExecutor
	tr   *fakeTranscriber
	sum  *fakeSummarizer
	up   *fakeUploader
	dir  string
	in   Input
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	capDir := t.TempDir()
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	return &fixture{
		exec: &fakeExecutor{durations: map[string]string{"u1": "120.0", "u2": "60.5"}},
		tr: &fakeTranscriber{segments: map[string][]models.RawSegment{
			"u1": {{Offset: 1, Text: "let's start"}},
			"u2": {{Offset: 2, Text: "sounds good"}},
		}},
		sum: &fakeSummarizer{},
		dir: t.TempDir(),
		in: Input{
			SessionID: "vc-1",
			Name:      "meeting-100000",
			StartTime: start,
			EndTime:   start.Add(10 * time.Minute),
			Tracks: map[string]string{
				"u1": writeTrack(t, capDir, "u1.ogg"),
				"u2": writeTrack(t, capDir, "u2.ogg"),
			},
			JoinTimes:    map[string]time.Time{"u1": start, "u2": start},
			Participants: []string{"u1", "u2"},
		},
	}
}

func (f *fixture) pipeline(opts Options) Pipeline {
	opts.RecordingsDir = f.dir
	deps := Deps{
		Executor:    f.exec,
		Transcriber: f.tr,
		Summarizer:  f.sum,
		Retry:       testRetry(),
		Directory:   names{"u1": "Alice", "u2": "Bob"},
		Metrics:     testMetrics(),
	}
	if f.up != nil {
		deps.Uploader = f.up
	}
	return New(opts, deps, logger.NewNop())
}

func TestRunComplete(t *testing.T) {
	f := newFixture(t)
	f.up = &fakeUploader{result: func(b upload.Batch) upload.Result {
		return upload.Result{Uploaded: b.Count(), Total: b.Count()}
	}}

	out, err := f.pipeline(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantTranscript := "[2025-03-04 10:00:01] Alice: let's start\n[2025-03-04 10:00:02] Bob: sounds good"
	if out.Results.Transcript != wantTranscript {
		t.Errorf("transcript:\n%s", out.Results.Transcript)
	}
	if out.Results.Title != "[20250304] Planning" {
		t.Errorf("title = %q", out.Results.Title)
	}
	if out.Results.Summary == models.SummaryUnavailable || out.Results.Todolist == models.TodolistUnavailable {
		t.Errorf("unexpected placeholders: %+v", out.Results)
	}
	if f.sum.calls.Load() != 3 {
		t.Errorf("expected 3 language calls, got %d", f.sum.calls.Load())
	}

	if out.Upload == nil || !out.Upload.OK() {
		t.Fatalf("expected successful upload, got %+v", out.Upload)
	}
	if !out.Cleaned {
		t.Fatal("expected working dir to be removed")
	}
	if _, err := os.Stat(out.WorkDir); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be gone, got %v", out.WorkDir, err)
	}

	b := f.up.batches[0]
	if b.Name != "20250304_meeting-100000" {
		t.Errorf("folder = %q", b.Name)
	}
	if len(b.Files) != 5 || b.Files[0].Name != "20250304_meeting-100000_metadata.json" {
		t.Errorf("files = %+v", b.Files)
	}
	if len(b.Children) != 1 || len(b.Children[0].Children) != 2 || b.Children[0].Children[0].Name != "Alice_audio" {
		t.Errorf("audio layout = %+v", b.Children)
	}
	for speaker, src := range f.in.Tracks {
		if _, err := os.Stat(src); !os.IsNotExist(err) {
			t.Errorf("captured track of %s should be removed after export", speaker)
		}
	}
}

func TestRunEmptyTranscript(t *testing.T) {
	f := newFixture(t)
	f.tr.segments = nil

	out, err := f.pipeline(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := out.Results
	if r.Transcript != models.TranscriptUnavailable {
		t.Fatalf("transcript = %q", r.Transcript)
	}
	if r.Summary != r.Transcript || r.Todolist != r.Transcript || r.Title != r.Transcript {
		t.Fatalf("expected one placeholder in every field, got %+v", r)
	}
	if f.sum.calls.Load() != 0 {
		t.Fatalf("language service must not be called, got %d calls", f.sum.calls.Load())
	}
	if out.Upload != nil {
		t.Fatal("no upload without a destination")
	}

	data, err := os.ReadFile(filepath.Join(out.WorkDir, "summary.txt"))
	if err != nil || string(data) != models.TranscriptUnavailable {
		t.Fatalf("summary.txt = %q, %v", data, err)
	}
	timeline, err := os.ReadFile(filepath.Join(out.WorkDir, "timeline.json"))
	if err != nil || strings.TrimSpace(string(timeline)) != "[]" {
		t.Fatalf("timeline.json = %q, %v", timeline, err)
	}
}

func TestRunEmptyTranscriptCustomPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.tr.segments = nil

	out, err := f.pipeline(Options{EmptyPlaceholder: "(nothing was said)"}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := models.Results{
		Transcript: "(nothing was said)",
		Summary:    "(nothing was said)",
		Todolist:   "(nothing was said)",
		Title:      "(nothing was said)",
	}
	if out.Results != want {
		t.Fatalf("expected %+v, got %+v", want, out.Results)
	}
}

func TestRunReportsProgress(t *testing.T) {
	f := newFixture(t)
	var (
		mu      sync.Mutex
		reports []models.Results
	)
	f.in.Progress = func(r models.Results) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, r)
	}

	out, err := f.pipeline(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 4 {
		t.Fatalf("expected 4 progress reports, got %d", len(reports))
	}
	first := reports[0]
	if first.Transcript != out.Results.Transcript || first.Summary != "" || first.Title != "" {
		t.Errorf("first report should carry the transcript only, got %+v", first)
	}
	if last := reports[len(reports)-1]; last != out.Results {
		t.Errorf("last report = %+v, want %+v", last, out.Results)
	}
}

func TestRunDegraded(t *testing.T) {
	f := newFixture(t)
	f.sum.summaryErr = models.Transient(errors.New("503"))
	f.up = &fakeUploader{result: func(b upload.Batch) upload.Result {
		return upload.Result{Uploaded: b.Count() - 1, Total: b.Count(), Failed: []string{"x"}}
	}}

	out, err := f.pipeline(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Results.Summary != models.SummaryUnavailable {
		t.Errorf("expected summary placeholder, got %q", out.Results.Summary)
	}
	if out.Results.Todolist == models.TodolistUnavailable {
		t.Error("to-do list should not be affected by the summary failure")
	}
	// 3 summary attempts + title + todolist
	if f.sum.calls.Load() != 5 {
		t.Errorf("expected 5 language calls, got %d", f.sum.calls.Load())
	}

	if out.Cleaned {
		t.Fatal("partial upload must keep the working dir")
	}
	var meta Metadata
	data, err := os.ReadFile(filepath.Join(out.WorkDir, "metadata.json"))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Duration != "10m0s" || len(meta.Participants) != 2 || meta.Participants[0] != "Alice" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestRunTranscriptionExhausted(t *testing.T) {
	f := newFixture(t)
	f.tr.err = models.Transient(errors.New("connection reset"))

	out, _ := f.pipeline(Options{}).Run(context.Background(), f.in)
	if f.tr.calls.Load() != 3 {
		t.Errorf("expected 3 transcription attempts, got %d", f.tr.calls.Load())
	}
	if out.Results.Transcript != models.TranscriptUnavailable {
		t.Errorf("expected transcript placeholder, got %q", out.Results.Transcript)
	}
}

func TestRunOnce(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(Options{})

	if _, err := p.Run(context.Background(), f.in); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := p.Run(context.Background(), f.in); !errors.Is(err, ErrAlreadyGenerated) {
		t.Fatalf("expected ErrAlreadyGenerated, got %v", err)
	}
	if f.tr.calls.Load() != 1 {
		t.Fatalf("expected a single transcription, got %d", f.tr.calls.Load())
	}
}

func TestExportSplitsLongTrack(t *testing.T) {
	f := newFixture(t)
	f.exec.durations = map[string]string{"u1": "4000.5"}
	f.exec.parts = 3
	p := f.pipeline(Options{MaxSegment: 30 * time.Minute}).(*implPipeline)

	parts := p.export(context.Background(), filepath.Join(f.dir, "work"), map[string]string{"u1": f.in.Tracks["u1"]})
	got := parts["u1"]
	if len(got) != 3 {
		t.Fatalf("expected 3 parts, got %+v", got)
	}
	for i, part := range got {
		if part.Index != i || !strings.Contains(part.Path, "u1_part00") {
			t.Errorf("part %d = %+v", i, part)
		}
	}
	if _, err := os.Stat(filepath.Join(f.dir, "work", "audio", "u1", "u1.ogg")); !os.IsNotExist(err) {
		t.Error("unsplit copy should be removed after segmenting")
	}
}

func TestExportSkipsUnreadableTrack(t *testing.T) {
	f := newFixture(t)
	f.exec.durations = map[string]string{"u1": "12"}
	p := f.pipeline(Options{}).(*implPipeline)

	parts := p.export(context.Background(), filepath.Join(f.dir, "work"), f.in.Tracks)
	if _, ok := parts["u2"]; ok {
		t.Fatal("u2 should be skipped")
	}
	if len(parts["u1"]) != 1 {
		t.Fatalf("expected u1 exported, got %+v", parts)
	}
	probes := 0
	for _, c := range f.exec.commands {
		if c == "ffprobe" {
			probes++
		}
	}
	// unreadable audio is not retried
	if probes != 2 {
		t.Fatalf("expected 2 ffprobe calls, got %d", probes)
	}
}

func TestRunWritesDocx(t *testing.T) {
	f := newFixture(t)
	out, err := f.pipeline(Options{WriteDocx: true}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, name := range []string{"transcript.docx", "summary.docx", "todolist.docx"} {
		if _, err := os.Stat(filepath.Join(out.WorkDir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestFolderName(t *testing.T) {
	in := Input{SessionID: "vc-1", Name: `a/b:c`, StartTime: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)}
	if got := folderName(in); got != "20250102_a_b_c" {
		t.Fatalf("folderName = %q", got)
	}
	in.Name = ""
	if got := folderName(in); got != "20250102_vc-1" {
		t.Fatalf("folderName = %q", got)
	}
}
