package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/retry"
)

func newTestUploader(svc *fakeService) (*implUploader, *[]time.Duration) {
	cache := NewConnectionCache(func(context.Context) (Service, error) { return svc, nil }, CacheOptions{}, logger.NewNop())
	exec := retry.New(logger.NewNop(), retry.Hooks{}).WithSleeper(func(context.Context, time.Duration) error { return nil })

	u := NewUploader(cache, exec, UploaderOptions{
		BatchSize:  3,
		BatchPause: 2 * time.Second,
		Retry:      retry.DefaultOptions(),
	}, logger.NewNop()).(*implUploader)

	var pauses []time.Duration
	u.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}
	return u, &pauses
}

func meetingBatch(n int) Batch {
	b := Batch{Name: "meeting"}
	for i := 0; i < n; i++ {
		name := string(rune('a' + i))
		b.Files = append(b.Files, File{Name: name + ".txt", Path: "/local/" + name + ".txt"})
	}
	return b
}

func TestUploadBatchAllSucceed(t *testing.T) {
	svc := &fakeService{}
	u, pauses := newTestUploader(svc)

	batch := meetingBatch(5)
	batch.Children = []Batch{{
		Name: "meeting_audio",
		Children: []Batch{{
			Name:  "alice_audio",
			Files: []File{{Name: "alice_part0.mp3", Path: "/local/alice_part0.mp3"}},
		}},
	}}

	res := u.UploadBatch(context.Background(), batch, "root")

	if !res.OK() {
		t.Fatalf("Result = %+v, want OK", res)
	}
	if res.Total != 6 || res.Uploaded != 6 {
		t.Errorf("Uploaded/Total = %d/%d, want 6/6", res.Uploaded, res.Total)
	}
	if res.FolderID != "root/meeting" {
		t.Errorf("FolderID = %q, want root/meeting", res.FolderID)
	}
	// two batches of metadata files -> one pause
	if len(*pauses) != 1 || (*pauses)[0] != 2*time.Second {
		t.Errorf("pauses = %v, want [2s]", *pauses)
	}

	wantFolders := []string{"root/meeting", "root/meeting/meeting_audio", "root/meeting/meeting_audio/alice_audio"}
	if len(svc.folders) != len(wantFolders) {
		t.Fatalf("folders = %v, want %v", svc.folders, wantFolders)
	}
	for i := range wantFolders {
		if svc.folders[i] != wantFolders[i] {
			t.Errorf("folders[%d] = %s, want %s", i, svc.folders[i], wantFolders[i])
		}
	}
}

func TestUploadBatchContinuesPastFailures(t *testing.T) {
	svc := &fakeService{failUploads: map[string]error{
		"/local/b.txt": errors.New("permission denied"),
	}}
	u, _ := newTestUploader(svc)

	res := u.UploadBatch(context.Background(), meetingBatch(7), "")

	if res.OK() {
		t.Fatal("Result.OK() = true with a failed file")
	}
	if res.Uploaded != 6 || res.Total != 7 {
		t.Errorf("Uploaded/Total = %d/%d, want 6/7", res.Uploaded, res.Total)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "/local/b.txt" {
		t.Errorf("Failed = %v", res.Failed)
	}
}

func TestUploadBatchFolderFailure(t *testing.T) {
	svc := &fakeService{failFolders: map[string]error{
		"meeting_audio": errors.New("forbidden"),
	}}
	u, _ := newTestUploader(svc)

	batch := meetingBatch(2)
	batch.Children = []Batch{{
		Name:  "meeting_audio",
		Files: []File{{Name: "x.mp3", Path: "/local/x.mp3"}, {Name: "y.mp3", Path: "/local/y.mp3"}},
	}}

	res := u.UploadBatch(context.Background(), batch, "")
	if res.Uploaded != 2 || res.Total != 4 {
		t.Errorf("Uploaded/Total = %d/%d, want 2/4", res.Uploaded, res.Total)
	}
	sort.Strings(res.Failed)
	if len(res.Failed) != 2 || res.Failed[0] != "/local/x.mp3" {
		t.Errorf("Failed = %v", res.Failed)
	}
}

func TestUploadBatchRetriesTransient(t *testing.T) {
	flaky := &flakyService{fakeService: &fakeService{}, failures: 2}
	cache := NewConnectionCache(func(context.Context) (Service, error) { return flaky, nil }, CacheOptions{}, logger.NewNop())
	exec := retry.New(logger.NewNop(), retry.Hooks{}).WithSleeper(func(context.Context, time.Duration) error { return nil })
	u := NewUploader(cache, exec, UploaderOptions{Retry: retry.DefaultOptions()}, logger.NewNop())

	res := u.UploadBatch(context.Background(), meetingBatch(1), "")
	if !res.OK() {
		t.Fatalf("Result = %+v, want OK after retries", res)
	}
	if flaky.calls != 3 {
		t.Errorf("upload calls = %d, want 3", flaky.calls)
	}
}

func TestUploadBatchQuotaStopsEarly(t *testing.T) {
	svc := &fakeService{failUploads: map[string]error{
		"/local/a.txt": errors.New("rate limit exceeded"),
	}}
	u, _ := newTestUploader(svc)
	u.opts.BatchSize = 1

	res := u.UploadBatch(context.Background(), meetingBatch(3), "")
	if res.Uploaded != 0 {
		t.Errorf("Uploaded = %d, want 0 once the quota cooldown started", res.Uploaded)
	}
	if !u.cache.InCooldown() {
		t.Error("cache should be cooling down")
	}
}

func TestUploadBatchCacheUnavailable(t *testing.T) {
	cache := NewConnectionCache(func(context.Context) (Service, error) {
		return nil, models.Configuration("no credentials")
	}, CacheOptions{}, logger.NewNop())
	u := NewUploader(cache, retry.New(logger.NewNop(), retry.Hooks{}), UploaderOptions{}, logger.NewNop())

	res := u.UploadBatch(context.Background(), meetingBatch(2), "")
	if res.OK() || res.Uploaded != 0 || len(res.Failed) != 2 {
		t.Errorf("Result = %+v, want nothing uploaded", res)
	}
}

func TestLocalService(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(t.TempDir(), "transcript.txt")
	if err := os.WriteFile(src, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	svc, err := NewLocalFactory(root)(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	folder, err := svc.CreateFolder(context.Background(), "meeting", "")
	if err != nil {
		t.Fatal(err)
	}
	id, err := svc.Upload(context.Background(), src, folder, "meeting_transcript.txt")
	if err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(root, id))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("uploaded content = %q, want hello", got)
	}
}

type flakyService struct {
	*fakeService
	failures int
	calls    int
}

func (s *flakyService) Upload(ctx context.Context, path, folderID, name string) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", models.Transient(errors.New("connection reset"))
	}
	return s.fakeService.Upload(ctx, path, folderID, name)
}
