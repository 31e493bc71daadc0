package summarizer

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

type implSummarizer struct {
	gen           generator
	logger        logger.Logger
	language      string
	summaryPrompt string
}

// New creates the Summarizer for the configured provider.
func New(cfg config.LanguageConfig, log logger.Logger) (Summarizer, error) {
	var gen generator
	switch Provider(cfg.Provider) {
	case ProviderGemini, "":
		if len(cfg.GeminiKeys) == 0 {
			return nil, models.Configuration("language.gemini_api_keys is empty")
		}
		gen = newGemini(cfg.GeminiKeys, cfg.Model, log)
	case ProviderAnthropic:
		if cfg.AnthropicKey == "" {
			return nil, models.Configuration("anthropic API key not set: set MEETREC_ANTHROPIC_API_KEY or add language.anthropic_api_key to config")
		}
		gen = newAnthropic(cfg.AnthropicKey, cfg.Model, &http.Client{Timeout: 5 * time.Minute})
	default:
		return nil, fmt.Errorf("unknown language provider %q", cfg.Provider)
	}

	return newWithGenerator(gen, cfg.OutputLang, cfg.SummaryPrompt, log), nil
}

func newWithGenerator(gen generator, language, summaryPrompt string, log logger.Logger) *implSummarizer {
	if language == "" {
		language = "English"
	}
	if summaryPrompt == "" {
		summaryPrompt = defaultSummaryPrompt
	}
	return &implSummarizer{
		gen:           gen,
		logger:        log,
		language:      language,
		summaryPrompt: summaryPrompt,
	}
}
