package summarizer

import (
	"context"
	"time"
)

// Summarizer turns a merged meeting transcript into summary, title and to-do list.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
	GenerateTitle(ctx context.Context, transcript string, start time.Time) (string, error)
	GenerateTodolist(ctx context.Context, transcript string) (string, error)
}

// Provider selects the language model backend.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// generator sends one prompt to a model and returns its text.
type generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}
