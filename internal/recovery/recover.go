package recovery

import (
	"context"
	"fmt"
	"os"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/pipeline"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
)

type implRecoverer struct {
	uploader upload.Uploader
	logger   logger.Logger
}

func (r *implRecoverer) Recover(ctx context.Context, dir string) (upload.Result, error) {
	batch, err := pipeline.BatchFromDir(dir)
	if err != nil {
		return upload.Result{}, err
	}
	if batch.Count() == 0 {
		return upload.Result{}, fmt.Errorf("%s has no files to upload", dir)
	}

	r.logger.Info(ctx, "Recovering %s (%d files)", dir, batch.Count())
	res := r.uploader.UploadBatch(ctx, batch, "")
	if !res.OK() {
		return res, fmt.Errorf("uploaded %d/%d files of %s", res.Uploaded, res.Total, dir)
	}

	if err := os.RemoveAll(dir); err != nil {
		r.logger.Error(ctx, "Failed to clean up local folder %s: %v", dir, err)
	} else {
		r.logger.Info(ctx, "Cleaned up local folder: %s", dir)
	}
	return res, nil
}
