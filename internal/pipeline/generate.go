package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/pkg/retry"
)

// generate runs summary, title and to-do list concurrently. Each call is
// retried on its own; an exhausted call leaves its field as placeholder.
func (p *implPipeline) generate(ctx context.Context, in Input, transcript string) models.Results {
	opts := p.opts.Retry
	opts.Retryable = models.IsRetryable

	var mu sync.Mutex
	res := models.Results{Transcript: transcript}
	set := func(field *string, v string) {
		mu.Lock()
		defer mu.Unlock()
		*field = v
		report(in, res)
	}

	var g errgroup.Group
	g.Go(func() error {
		summary, _ := retry.Do(ctx, p.deps.Retry, "summarize: "+in.SessionID, opts, func(ctx context.Context) (string, error) {
			return p.deps.Summarizer.Summarize(ctx, transcript)
		})
		set(&res.Summary, summary)
		return nil
	})
	g.Go(func() error {
		title, _ := retry.Do(ctx, p.deps.Retry, "title: "+in.SessionID, opts, func(ctx context.Context) (string, error) {
			return p.deps.Summarizer.GenerateTitle(ctx, transcript, in.StartTime)
		})
		set(&res.Title, title)
		return nil
	})
	g.Go(func() error {
		todolist, _ := retry.Do(ctx, p.deps.Retry, "todolist: "+in.SessionID, opts, func(ctx context.Context) (string, error) {
			return p.deps.Summarizer.GenerateTodolist(ctx, transcript)
		})
		set(&res.Todolist, todolist)
		return nil
	})
	g.Wait()

	return res.WithPlaceholders()
}
