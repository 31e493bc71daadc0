package recovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
)

type fakeUploader struct {
	mu      sync.Mutex
	batches []upload.Batch
	fail    int
}

func (u *fakeUploader) UploadBatch(_ context.Context, b upload.Batch, _ string) upload.Result {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.batches = append(u.batches, b)
	return upload.Result{FolderID: "f1", Total: b.Count(), Uploaded: b.Count() - u.fail}
}

func (u *fakeUploader) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.batches)
}

func writeSessionDir(t *testing.T, parent, name string) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	files := map[string]string{
		"metadata.json":           `{"session_id":"vc-1"}`,
		"summary.txt":             "summary",
		"audio/u1/u1_part000.ogg": "a",
		"audio/u1/u1_part001.ogg": "b",
		"audio/u2/u2.ogg":         "c",
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRecover(t *testing.T) {
	tcs := map[string]struct {
		fail     int
		wantErr  bool
		wantKept bool
	}{
		"complete upload removes folder": {},
		"partial upload keeps folder":    {fail: 1, wantErr: true, wantKept: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			dir := writeSessionDir(t, t.TempDir(), "20250304_meeting-101530")
			up := &fakeUploader{fail: tc.fail}

			res, err := New(up, logger.NewNop()).Recover(context.Background(), dir)
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected err: %v", err)
			}
			if res.Total != 5 {
				t.Fatalf("expected 5 files, got %d", res.Total)
			}
			_, statErr := os.Stat(dir)
			if kept := statErr == nil; kept != tc.wantKept {
				t.Fatalf("expected kept=%v, stat err %v", tc.wantKept, statErr)
			}

			b := up.batches[0]
			if b.Name != "20250304_meeting-101530" || len(b.Files) != 2 {
				t.Fatalf("unexpected batch %+v", b)
			}
			if b.Files[0].Name != "20250304_meeting-101530_metadata.json" {
				t.Fatalf("unexpected file name %s", b.Files[0].Name)
			}
			audio := b.Children[0]
			if audio.Name != "20250304_meeting-101530_audio" || len(audio.Children) != 2 {
				t.Fatalf("unexpected audio batch %+v", audio)
			}
			if audio.Children[0].Name != "u1_audio" || audio.Children[0].Files[1].Name != "u1_part001.ogg" {
				t.Fatalf("unexpected speaker batch %+v", audio.Children[0])
			}
		})
	}
}

func TestRecoverRejectsForeignFolder(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	up := &fakeUploader{}

	_, err := New(up, logger.NewNop()).Recover(context.Background(), dir)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected missing metadata error, got %v", err)
	}
	if up.calls() != 0 {
		t.Fatal("uploader must not be called")
	}
}

func TestWatcher(t *testing.T) {
	drop := t.TempDir()
	existing := writeSessionDir(t, drop, "20250303_meeting-090000")
	up := &fakeUploader{}

	w, err := NewWatcher(drop, New(up, logger.NewNop()), logger.NewNop(), 2)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()
	w.(*implWatcher).settle = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	waitCalls(t, up, 1)
	if _, err := os.Stat(existing); !os.IsNotExist(err) {
		t.Fatalf("existing folder should be removed, stat err %v", err)
	}

	dropped := writeSessionDir(t, drop, "20250304_meeting-101530")
	waitCalls(t, up, 2)
	waitGone(t, dropped)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func waitCalls(t *testing.T, up *fakeUploader, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for up.calls() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d uploads, got %d", n, up.calls())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitGone(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s still exists", path)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
