package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
)

// MetadataFile marks a working dir written by a pipeline run.
const MetadataFile = "metadata.json"

// BatchFromDir rebuilds the upload batch of a preserved working dir. Audio
// folders keep the on-disk speaker names since display names are not
// persisted per track.
func BatchFromDir(workDir string) (upload.Batch, error) {
	if _, err := os.Stat(filepath.Join(workDir, MetadataFile)); err != nil {
		return upload.Batch{}, fmt.Errorf("%s is not a session folder: %w", workDir, err)
	}
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return upload.Batch{}, err
	}

	var files []artifact
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		kind := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		files = append(files, artifact{kind: kind, path: filepath.Join(workDir, e.Name())})
	}

	parts := make(map[string][]models.AudioPart)
	speakers, err := os.ReadDir(filepath.Join(workDir, "audio"))
	if err != nil && !os.IsNotExist(err) {
		return upload.Batch{}, err
	}
	for _, s := range speakers {
		if !s.IsDir() {
			continue
		}
		dir := filepath.Join(workDir, "audio", s.Name())
		tracks, err := os.ReadDir(dir)
		if err != nil {
			return upload.Batch{}, err
		}
		names := make([]string, 0, len(tracks))
		for _, t := range tracks {
			if !t.IsDir() {
				names = append(names, t.Name())
			}
		}
		sort.Strings(names)
		for i, name := range names {
			parts[s.Name()] = append(parts[s.Name()], models.AudioPart{
				SpeakerID: s.Name(),
				Index:     i,
				Path:      filepath.Join(dir, name),
			})
		}
	}

	identity := func(s string) string { return s }
	return buildBatch(filepath.Base(workDir), files, parts, identity), nil
}
