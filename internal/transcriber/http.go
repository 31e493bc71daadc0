package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

// httpEngine posts audio to a whisper-compatible /audio/transcriptions endpoint.
type httpEngine struct {
	endpoint   string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
}

type transcriptionResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Duration float64 `json:"duration"`
}

func newHTTPEngine(cfg config.TranscriptionConfig, client *http.Client) *httpEngine {
	return &httpEngine{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		language:   cfg.Language,
		httpClient: client,
	}
}

func (h *httpEngine) transcribeFile(ctx context.Context, path string) ([]models.RawSegment, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPartialCapture, err)
	}

	body, contentType, err := h.createMultipartRequest(filepath.Base(path), audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return nil, models.Transient(fmt.Errorf("HTTP request failed: %w", err))
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.Transient(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, models.Transient(fmt.Errorf("HTTP error %d: %s", resp.StatusCode, respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, respBody)
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if len(tr.Segments) == 0 {
		if tr.Text == "" {
			return nil, nil
		}
		return []models.RawSegment{{Offset: 0, Duration: tr.Duration, Text: tr.Text}}, nil
	}

	segs := make([]models.RawSegment, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		segs = append(segs, models.RawSegment{
			Offset:   s.Start,
			Duration: s.End - s.Start,
			Text:     s.Text,
		})
	}
	return segs, nil
}

func (h *httpEngine) createMultipartRequest(filename string, audio []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fw, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"response_format":           "verbose_json",
		"timestamp_granularities[]": "segment",
	}
	if h.model != "" {
		fields["model"] = h.model
	}
	if h.language != "" {
		fields["language"] = h.language
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
