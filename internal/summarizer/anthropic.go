package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

const anthropicURL = "https://api.anthropic.com/v1/messages"

type anthropicGenerator struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

func newAnthropic(apiKey, model string, client *http.Client) *anthropicGenerator {
	if model == "" {
		model = "claude-haiku-4-5"
	}
	return &anthropicGenerator{
		apiKey:   apiKey,
		model:    model,
		endpoint: anthropicURL,
		client:   client,
	}
}

func (a *anthropicGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     a.model,
		MaxTokens: 4096,
		System:    system,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", models.Transient(fmt.Errorf("calling Anthropic API: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.Transient(fmt.Errorf("reading response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", models.QuotaExceeded(fmt.Errorf("anthropic API error (HTTP %d): %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 500 || resp.StatusCode == 529:
		return "", models.Transient(fmt.Errorf("anthropic API error (HTTP %d): %s", resp.StatusCode, respBody))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("anthropic API error (HTTP %d): %s", resp.StatusCode, respBody)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parsing Anthropic response: %w", err)
	}

	var text string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", models.Transient(fmt.Errorf("empty response from Anthropic API"))
	}
	return text, nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}
