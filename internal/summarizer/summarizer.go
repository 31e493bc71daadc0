package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const invalidTitleChars = `<>:"/\|?*`

// Summarize produces the meeting summary.
func (s *implSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	prompt := fmt.Sprintf("Meeting transcript:\n---\n%s\n---\n\nWrite the summary in %s. No additional commentary is needed.",
		transcript, s.language)
	return s.generate(ctx, "summary", s.summaryPrompt, prompt)
}

// GenerateTodolist extracts action items.
func (s *implSummarizer) GenerateTodolist(ctx context.Context, transcript string) (string, error) {
	prompt := fmt.Sprintf("Meeting transcript:\n---\n%s\n---\n\nWrite the to-do list in %s. No additional commentary is needed.",
		transcript, s.language)
	return s.generate(ctx, "todolist", todolistPrompt, prompt)
}

// GenerateTitle returns "[YYYYMMDD] Title" for the meeting that started at start.
func (s *implSummarizer) GenerateTitle(ctx context.Context, transcript string, start time.Time) (string, error) {
	datePrefix := start.Format("[20060102]")
	prompt := fmt.Sprintf("Meeting transcript:\n---\n%s\n---\n\nGenerate a title in %s. Use this date prefix: %s\nThe title must be a single line with no additional text.",
		transcript, s.language, datePrefix)

	raw, err := s.generate(ctx, "title", titlePrompt, prompt)
	if err != nil {
		return "", err
	}
	return formatTitle(raw, datePrefix), nil
}

func (s *implSummarizer) generate(ctx context.Context, kind, system, prompt string) (string, error) {
	start := time.Now()
	text, err := s.gen.Generate(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", kind, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("generate %s: empty response", kind)
	}
	s.logger.Debug(ctx, "Generated %s (%d chars) in %s", kind, len(text), time.Since(start).Round(time.Millisecond))
	return text, nil
}

// formatTitle keeps the first line, forces the date prefix and strips
// characters that are invalid in file and folder names.
func formatTitle(raw, datePrefix string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.Trim(title, "`'\" ")
	if !strings.HasPrefix(title, datePrefix) {
		title = datePrefix + " " + title
	}
	title = strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidTitleChars, r) {
			return -1
		}
		return r
	}, title)
	return strings.TrimSpace(title)
}
