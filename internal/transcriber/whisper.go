package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/executor"
)

// whisperEngine runs a local whisper.cpp binary.
type whisperEngine struct {
	cfg      config.TranscriptionConfig
	ffmpeg   string
	executor executor.Executor
	logger   logger.Logger
}

func newWhisperEngine(cfg config.TranscriptionConfig, ffmpegPath string, exec executor.Executor, log logger.Logger) *whisperEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &whisperEngine{
		cfg:      cfg,
		ffmpeg:   ffmpegPath,
		executor: exec,
		logger:   log,
	}
}

func (w *whisperEngine) transcribeFile(ctx context.Context, path string) ([]models.RawSegment, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPartialCapture, err)
	}

	wavPath, err := w.toWav(ctx, path)
	if err != nil {
		return nil, err
	}
	defer w.cleanupTempFile(ctx, wavPath)

	// whisper appends .srt to the output prefix
	outputPrefix := strings.TrimSuffix(wavPath, filepath.Ext(wavPath))

	// -ml 0 / -mc 0: no max segment length or context limit
	// -bo 5: best of 5 for accuracy
	args := []string{
		"-m", w.cfg.ModelPath,
		"-f", wavPath,
		"-osrt",
		"-l", w.cfg.Language,
		"-t", strconv.Itoa(w.cfg.Threads),
		"-ml", "0",
		"-mc", "0",
		"-bo", "5",
		"--output-file", outputPrefix,
	}
	if w.cfg.Prompt != "" {
		args = append(args, "--prompt", w.cfg.Prompt)
	}

	w.logger.Debug(ctx, "Running whisper with %d threads: %s", w.cfg.Threads, wavPath)
	if _, err := w.executor.Execute(ctx, w.cfg.BinaryPath, args...); err != nil {
		return nil, fmt.Errorf("whisper transcribe: %w", err)
	}

	srtPath := outputPrefix + ".srt"
	defer w.cleanupTempFile(ctx, srtPath)

	content, err := os.ReadFile(srtPath)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return parseSRT(string(content))
}

// toWav converts captured audio to the 16kHz mono PCM whisper expects.
func (w *whisperEngine) toWav(ctx context.Context, path string) (string, error) {
	wavPath := strings.TrimSuffix(path, filepath.Ext(path)) + "_whisper.wav"
	args := []string{
		"-i", path,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-threads", "0",
		"-y",
		wavPath,
	}
	if _, err := w.executor.Execute(ctx, w.ffmpeg, args...); err != nil {
		return "", fmt.Errorf("ffmpeg convert to wav: %w", err)
	}
	return wavPath, nil
}

// cleanupTempFile removes a temporary file, logs warning if fails
func (w *whisperEngine) cleanupTempFile(ctx context.Context, filePath string) {
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		w.logger.Warn(ctx, "Failed to cleanup temp file %s: %v", filePath, err)
	}
}
