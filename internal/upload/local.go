package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// localService copies files into a directory tree, e.g. a mounted share.
type localService struct {
	root string
}

// NewLocalFactory returns a Factory for a directory destination.
func NewLocalFactory(root string) Factory {
	return func(ctx context.Context) (Service, error) {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("create upload root: %w", err)
		}
		return &localService{root: root}, nil
	}
}

func (s *localService) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	id := filepath.Join(parentID, name)
	if err := os.MkdirAll(filepath.Join(s.root, id), 0755); err != nil {
		return "", fmt.Errorf("create folder %s: %w", id, err)
	}
	return id, nil
}

func (s *localService) Upload(ctx context.Context, path, folderID, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" {
		name = filepath.Base(path)
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	id := filepath.Join(folderID, name)
	dst, err := os.Create(filepath.Join(s.root, id))
	if err != nil {
		return "", fmt.Errorf("create %s: %w", id, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copy %s: %w", id, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", id, err)
	}
	return id, nil
}
