package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
)

// Metadata is written as metadata.json next to the session outputs.
type Metadata struct {
	RunID        string    `json:"run_id"`
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Duration     string    `json:"duration"`
	Participants []string  `json:"participants"`
	Speakers     []string  `json:"speakers"`
	Segments     int       `json:"segments"`
}

// artifact is one persisted output; kind becomes part of its remote name.
type artifact struct {
	kind string
	path string
}

// persist writes the session outputs into workDir. Files that fail to write
// are logged and left out.
func (p *implPipeline) persist(ctx context.Context, workDir string, in Input, out Output) []artifact {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		p.logger.Error(ctx, "Failed to create output dir %s: %v", workDir, err)
		return nil
	}

	participants := make([]string, 0, len(in.Participants))
	for _, id := range in.Participants {
		participants = append(participants, p.displayName(id))
	}
	speakers := make([]string, 0, len(in.Tracks))
	for _, id := range sortedKeys(in.Tracks) {
		speakers = append(speakers, p.displayName(id))
	}
	meta := Metadata{
		RunID:        out.RunID,
		SessionID:    in.SessionID,
		Name:         in.Name,
		Title:        out.Results.Title,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		Duration:     in.EndTime.Sub(in.StartTime).Round(time.Second).String(),
		Participants: participants,
		Speakers:     speakers,
		Segments:     len(out.Segments),
	}

	segments := out.Segments
	if segments == nil {
		segments = []models.TranscriptSegment{}
	}

	var files []artifact
	write := func(kind, name string, data []byte) {
		path := filepath.Join(workDir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			p.logger.Error(ctx, "Failed to write %s: %v", path, err)
			return
		}
		files = append(files, artifact{kind: kind, path: path})
	}

	if data, err := json.MarshalIndent(meta, "", "  "); err == nil {
		write("metadata", "metadata.json", data)
	}
	if data, err := json.MarshalIndent(segments, "", "  "); err == nil {
		write("timeline", "timeline.json", data)
	}
	write("transcript", "transcript.txt", []byte(out.Results.Transcript))
	write("summary", "summary.txt", []byte(out.Results.Summary))
	write("todolist", "todolist.txt", []byte(out.Results.Todolist))

	if p.opts.WriteDocx {
		docs := []struct {
			kind   string
			render func(path string) error
		}{
			{"transcript", func(path string) error { return transcriptToDocx(out.Results.Title, out.Segments, path) }},
			{"summary", func(path string) error { return markdownToDocx(out.Results.Title, out.Results.Summary, path) }},
			{"todolist", func(path string) error { return markdownToDocx(out.Results.Title, out.Results.Todolist, path) }},
		}
		for _, d := range docs {
			path := filepath.Join(workDir, d.kind+".docx")
			if err := d.render(path); err != nil {
				p.logger.Warn(ctx, "Failed to render %s: %v", path, err)
				continue
			}
			files = append(files, artifact{kind: d.kind, path: path})
		}
	}

	p.logger.Info(ctx, "Saved %d output files to %s", len(files), workDir)
	return files
}

// buildBatch lays out the remote folder:
//
//	<folder>/<folder>_<kind><ext>
//	<folder>/<folder>_audio/<speaker>_audio/<part files>
func buildBatch(folder string, files []artifact, parts map[string][]models.AudioPart, name func(string) string) upload.Batch {
	batch := upload.Batch{Name: folder}
	for _, f := range files {
		batch.Files = append(batch.Files, upload.File{
			Name: folder + "_" + f.kind + filepath.Ext(f.path),
			Path: f.path,
		})
	}

	audio := upload.Batch{Name: folder + "_audio"}
	for _, speaker := range sortedKeys(parts) {
		if len(parts[speaker]) == 0 {
			continue
		}
		child := upload.Batch{Name: safeName(name(speaker)) + "_audio"}
		for _, part := range parts[speaker] {
			child.Files = append(child.Files, upload.File{Name: filepath.Base(part.Path), Path: part.Path})
		}
		audio.Children = append(audio.Children, child)
	}
	if len(audio.Children) > 0 {
		batch.Children = append(batch.Children, audio)
	}
	return batch
}

// cleanup removes the local working dir after a complete upload.
func (p *implPipeline) cleanup(ctx context.Context, workDir string) bool {
	if err := os.RemoveAll(workDir); err != nil {
		p.logger.Error(ctx, "Failed to clean up local folder %s: %v", workDir, err)
		return false
	}
	p.logger.Info(ctx, "Cleaned up local folder: %s", workDir)
	return true
}
