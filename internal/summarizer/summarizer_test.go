package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

type fakeGenerator struct {
	reply   string
	err     error
	systems []string
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestFormatTitle(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"already prefixed", "[20250301] Sprint Planning", "[20250301] Sprint Planning"},
		{"missing prefix", "Sprint Planning", "[20250301] Sprint Planning"},
		{"invalid chars", `Q1: "Budget" / Hiring?`, "[20250301] Q1 Budget  Hiring"},
		{"multi line", "Roadmap Review\nThis meeting covered...", "[20250301] Roadmap Review"},
		{"quoted", `"Design Sync"`, "[20250301] Design Sync"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTitle(tt.raw, "[20250301]"); got != tt.want {
				t.Errorf("formatTitle(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestGenerateTitle(t *testing.T) {
	gen := &fakeGenerator{reply: "  Weekly Sync  "}
	s := newWithGenerator(gen, "German", "", logger.NewNop())

	start := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	title, err := s.GenerateTitle(context.Background(), "[..] alice: hi", start)
	if err != nil {
		t.Fatalf("GenerateTitle() error = %v", err)
	}
	if title != "[20250301] Weekly Sync" {
		t.Errorf("GenerateTitle() = %q", title)
	}
	if !strings.Contains(gen.prompts[0], "German") || !strings.Contains(gen.prompts[0], "[20250301]") {
		t.Errorf("prompt missing language or date prefix: %q", gen.prompts[0])
	}
	if gen.systems[0] != titlePrompt {
		t.Error("title call did not use the title prompt")
	}
}

func TestSummarizeAndTodolist(t *testing.T) {
	gen := &fakeGenerator{reply: "result"}
	s := newWithGenerator(gen, "", "custom system", logger.NewNop())

	if got, err := s.Summarize(context.Background(), "t"); err != nil || got != "result" {
		t.Fatalf("Summarize() = (%q, %v)", got, err)
	}
	if got, err := s.GenerateTodolist(context.Background(), "t"); err != nil || got != "result" {
		t.Fatalf("GenerateTodolist() = (%q, %v)", got, err)
	}
	if gen.systems[0] != "custom system" {
		t.Errorf("summary system prompt = %q, want custom system", gen.systems[0])
	}
	if gen.systems[1] != todolistPrompt {
		t.Error("todolist call did not use the todolist prompt")
	}
	if !strings.Contains(gen.prompts[0], "English") {
		t.Error("default output language not applied")
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"empty reply", &fakeGenerator{reply: "   "}},
		{"generator error", &fakeGenerator{err: models.Transient(errors.New("503"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newWithGenerator(tt.gen, "", "", logger.NewNop())
			if _, err := s.Summarize(context.Background(), "t"); err == nil {
				t.Error("Summarize() error = nil")
			}
		})
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LanguageConfig
	}{
		{"gemini without keys", config.LanguageConfig{Provider: "gemini"}},
		{"anthropic without key", config.LanguageConfig{Provider: "anthropic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, logger.NewNop())
			if !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("New() error = %v, want configuration error", err)
			}
		})
	}
}

func TestAnthropicGenerate(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"Meeting "},{"type":"text","text":"Summary"}]}`))
	}))
	defer srv.Close()

	a := newAnthropic("k", "claude-haiku-4-5", srv.Client())
	a.endpoint = srv.URL

	text, err := a.Generate(context.Background(), "sys", "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "Meeting Summary" {
		t.Errorf("Generate() = %q", text)
	}
	if got.System != "sys" || len(got.Messages) != 1 || got.Messages[0].Content != "prompt" {
		t.Errorf("request = %+v", got)
	}
}

func TestAnthropicErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		quota     bool
	}{
		{http.StatusTooManyRequests, false, true},
		{http.StatusServiceUnavailable, true, false},
		{http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		a := newAnthropic("k", "", srv.Client())
		a.endpoint = srv.URL

		_, err := a.Generate(context.Background(), "", "p")
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: error = nil", tt.status)
		}
		if got := models.IsRetryable(err); got != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, got, tt.retryable)
		}
		if got := errors.Is(err, models.ErrQuotaExceeded); got != tt.quota {
			t.Errorf("status %d: quota = %v, want %v", tt.status, got, tt.quota)
		}
	}
}

func TestGeminiKeyRotation(t *testing.T) {
	g := newGemini([]string{"a", "b", "c"}, "", logger.NewNop())

	idx, key := g.key()
	if idx != 0 || key != "a" {
		t.Fatalf("key() = (%d, %s), want (0, a)", idx, key)
	}
	g.rotateKey(0)
	// a stale rotation from a concurrent call must not skip a key
	g.rotateKey(0)
	if idx, key = g.key(); idx != 1 || key != "b" {
		t.Errorf("key() = (%d, %s), want (1, b)", idx, key)
	}
	g.rotateKey(1)
	g.rotateKey(2)
	if idx, _ = g.key(); idx != 0 {
		t.Errorf("key() index = %d, want wrap to 0", idx)
	}
}

func TestIsRateLimited(t *testing.T) {
	tests := map[string]bool{
		"Error 429, Message: Resource has been exhausted": true,
		"RESOURCE_EXHAUSTED":                              true,
		"exceeded your current quota":                     true,
		"Error 400, Message: invalid argument":            false,
	}
	for msg, want := range tests {
		if got := isRateLimited(msg); got != want {
			t.Errorf("isRateLimited(%q) = %v, want %v", msg, got, want)
		}
	}
}
