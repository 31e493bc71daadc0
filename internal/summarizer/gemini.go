package summarizer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

type geminiGenerator struct {
	apiKeys []string
	model   string
	logger  logger.Logger

	mu         sync.Mutex
	currentKey int
}

func newGemini(apiKeys []string, model string, log logger.Logger) *geminiGenerator {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &geminiGenerator{
		apiKeys: apiKeys,
		model:   model,
		logger:  log,
	}
}

// Generate calls Gemini, rotating API keys on 429 / quota errors. When every
// key is rate limited the error is a quota error.
func (g *geminiGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error

	for range g.apiKeys {
		idx, key := g.key()

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			lastErr = fmt.Errorf("create client: %w", err)
			g.rotateKey(idx)
			continue
		}

		var cfg *genai.GenerateContentConfig
		if system != "" {
			cfg = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			}
		}

		result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
		if err != nil {
			if isRateLimited(err.Error()) {
				g.logger.Warn(ctx, "Key %d rate limited, rotating...", idx+1)
				g.rotateKey(idx)
				lastErr = err
				continue
			}
			return "", classifyGeminiError(err)
		}

		if text := responseText(result); text != "" {
			return text, nil
		}
		return "", models.Transient(fmt.Errorf("empty response from Gemini"))
	}

	return "", models.QuotaExceeded(fmt.Errorf("all API keys exhausted: %w", lastErr))
}

func (g *geminiGenerator) key() (int, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentKey, g.apiKeys[g.currentKey]
}

// rotateKey moves past idx unless another call already rotated.
func (g *geminiGenerator) rotateKey(idx int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentKey == idx {
		g.currentKey = (g.currentKey + 1) % len(g.apiKeys)
	}
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func isRateLimited(msg string) bool {
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func classifyGeminiError(err error) error {
	msg := err.Error()
	for _, s := range []string{"500", "502", "503", "504", "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL", "connection reset", "timeout"} {
		if strings.Contains(msg, s) {
			return models.Transient(fmt.Errorf("generate content: %w", err))
		}
	}
	return fmt.Errorf("generate content: %w", err)
}
