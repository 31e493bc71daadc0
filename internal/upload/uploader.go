package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/retry"
)

// UploaderOptions configure batching and per-call retries.
type UploaderOptions struct {
	BatchSize  int
	BatchPause time.Duration
	Retry      retry.Options
}

type implUploader struct {
	cache *ConnectionCache
	retry *retry.Executor
	opts  UploaderOptions
	log   logger.Logger
	sleep retry.Sleeper
}

// NewUploader creates an Uploader over cache.
func NewUploader(cache *ConnectionCache, exec *retry.Executor, opts UploaderOptions, log logger.Logger) Uploader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 3
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = models.IsRetryable
	}
	return &implUploader{
		cache: cache,
		retry: exec,
		opts:  opts,
		log:   log,
		sleep: pause,
	}
}

// UploadBatch creates batch.Name under parentID and uploads every file,
// continuing past failures. Files under a folder that could not be created
// count as failed.
func (u *implUploader) UploadBatch(ctx context.Context, batch Batch, parentID string) Result {
	start := time.Now()
	res := Result{Total: batch.Count()}

	if _, ok := u.cache.Get(ctx, false); !ok {
		u.log.Error(ctx, "Upload service unavailable, skipping upload of %s", batch.Name)
		res.Failed = batchPaths(batch)
		res.Duration = time.Since(start)
		return res
	}

	var mu sync.Mutex
	res.FolderID = u.uploadFolder(ctx, batch, parentID, &res, &mu)
	res.Duration = time.Since(start)

	u.log.Info(ctx, "Uploaded %d/%d files to folder '%s'. %d files failed.",
		res.Uploaded, res.Total, batch.Name, len(res.Failed))
	return res
}

func (u *implUploader) uploadFolder(ctx context.Context, batch Batch, parentID string, res *Result, mu *sync.Mutex) string {
	folderID, ok := retry.Do(ctx, u.retry, "create folder: "+batch.Name, u.opts.Retry, func(ctx context.Context) (string, error) {
		svc, err := u.service(ctx)
		if err != nil {
			return "", err
		}
		id, err := svc.CreateFolder(ctx, batch.Name, parentID)
		if err != nil {
			err = classify(err)
			u.cache.ReportError(err)
			return "", err
		}
		return id, nil
	})
	if !ok {
		u.log.Error(ctx, "Failed to create folder %s", batch.Name)
		mu.Lock()
		res.Failed = append(res.Failed, batchPaths(batch)...)
		mu.Unlock()
		return ""
	}

	total := (len(batch.Files) + u.opts.BatchSize - 1) / u.opts.BatchSize
	for i := 0; i < len(batch.Files); i += u.opts.BatchSize {
		end := min(i+u.opts.BatchSize, len(batch.Files))
		n := i/u.opts.BatchSize + 1

		if i > 0 && u.opts.BatchPause > 0 {
			if err := u.sleep(ctx, u.opts.BatchPause); err != nil {
				mu.Lock()
				for _, f := range batch.Files[i:] {
					res.Failed = append(res.Failed, f.Path)
				}
				mu.Unlock()
				break
			}
		}

		u.log.Debug(ctx, "Uploading batch %d/%d of %s (%d files)", n, total, batch.Name, end-i)

		var g errgroup.Group
		for _, f := range batch.Files[i:end] {
			f := f
			g.Go(func() error {
				if u.uploadFile(ctx, f, folderID) {
					mu.Lock()
					res.Uploaded++
					mu.Unlock()
					return nil
				}
				mu.Lock()
				res.Failed = append(res.Failed, f.Path)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, child := range batch.Children {
		u.uploadFolder(ctx, child, folderID, res, mu)
	}
	return folderID
}

func (u *implUploader) uploadFile(ctx context.Context, f File, folderID string) bool {
	_, ok := retry.Do(ctx, u.retry, "upload: "+f.Name, u.opts.Retry, func(ctx context.Context) (string, error) {
		svc, err := u.service(ctx)
		if err != nil {
			return "", err
		}
		id, err := svc.Upload(ctx, f.Path, folderID, f.Name)
		if err != nil {
			err = classify(err)
			u.cache.ReportError(err)
			return "", err
		}
		return id, nil
	})
	if !ok {
		u.log.Error(ctx, "Failed to upload %s", f.Path)
	}
	return ok
}

// service fails fast during a cooldown so retries do not wait it out.
func (u *implUploader) service(ctx context.Context) (Service, error) {
	svc, ok := u.cache.Get(ctx, false)
	if ok {
		return svc, nil
	}
	if u.cache.InCooldown() {
		return nil, models.QuotaExceeded(fmt.Errorf("upload service cooling down"))
	}
	return nil, models.Transient(fmt.Errorf("upload service unavailable"))
}

func batchPaths(b Batch) []string {
	out := make([]string, 0, b.Count())
	for _, f := range b.Files {
		out = append(out, f.Path)
	}
	for _, c := range b.Children {
		out = append(out, batchPaths(c)...)
	}
	return out
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
