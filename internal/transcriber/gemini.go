package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

const transcribePrompt = `Transcribe this audio recording of one meeting participant.
Return a JSON array of segments: [{"offset": <start in seconds>, "duration": <length in seconds>, "text": "<spoken text>"}].
Keep the original spoken language%s. Return [] if nothing is said.`

// geminiEngine sends audio inline to Gemini and asks for timestamped JSON.
type geminiEngine struct {
	apiKeys  []string
	model    string
	language string
	logger   logger.Logger

	mu         sync.Mutex
	currentKey int
}

func newGeminiEngine(apiKeys []string, model, language string, log logger.Logger) *geminiEngine {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &geminiEngine{
		apiKeys:  apiKeys,
		model:    model,
		language: language,
		logger:   log,
	}
}

func (g *geminiEngine) transcribeFile(ctx context.Context, path string) ([]models.RawSegment, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPartialCapture, err)
	}

	hint := ""
	if g.language != "" && g.language != "auto" {
		hint = " (expected language: " + g.language + ")"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(fmt.Sprintf(transcribePrompt, hint)),
			genai.NewPartFromBytes(audio, audioMIME(path)),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

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

		result, err := client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			msg := err.Error()
			if strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
				g.logger.Warn(ctx, "Key %d rate limited, rotating...", idx+1)
				g.rotateKey(idx)
				lastErr = err
				continue
			}
			return nil, models.Transient(fmt.Errorf("generate content: %w", err))
		}
		return parseSegmentsJSON(result.Text())
	}

	// every key limited; still transient from the pipeline's point of view
	return nil, models.Transient(fmt.Errorf("all API keys exhausted: %w", lastErr))
}

func (g *geminiEngine) key() (int, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentKey, g.apiKeys[g.currentKey]
}

func (g *geminiEngine) rotateKey(idx int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentKey == idx {
		g.currentKey = (g.currentKey + 1) % len(g.apiKeys)
	}
}

func parseSegmentsJSON(text string) ([]models.RawSegment, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var segs []models.RawSegment
	if err := json.Unmarshal([]byte(text), &segs); err != nil {
		return nil, models.Transient(fmt.Errorf("parse transcription JSON: %w", err))
	}
	return segs, nil
}

func audioMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}
