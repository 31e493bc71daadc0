package upload

import (
	"context"
	"time"
)

// Service is a connected upload destination. Folder ids are opaque to callers.
type Service interface {
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	Upload(ctx context.Context, path, folderID, name string) (string, error)
}

// Factory opens a new Service connection.
type Factory func(ctx context.Context) (Service, error)

// Backend selects the upload destination.
type Backend string

const (
	BackendNone  Backend = "none"
	BackendLocal Backend = "local"
	BackendS3    Backend = "s3"
)

// File is one local file uploaded under a logical remote name.
type File struct {
	Name string
	Path string
}

// Batch is a remote folder with its files and nested folders.
type Batch struct {
	Name     string
	Files    []File
	Children []Batch
}

// Count returns the number of files in b and all nested batches.
func (b Batch) Count() int {
	n := len(b.Files)
	for _, c := range b.Children {
		n += c.Count()
	}
	return n
}

// Result summarizes one batch upload.
type Result struct {
	FolderID string
	Uploaded int
	Total    int
	Failed   []string
	Duration time.Duration
}

// OK reports whether every file reached the destination.
func (r Result) OK() bool {
	return r.Total > 0 && r.Uploaded == r.Total
}

// Uploader pushes a Batch to the destination held by a ConnectionCache.
type Uploader interface {
	UploadBatch(ctx context.Context, batch Batch, parentID string) Result
}
