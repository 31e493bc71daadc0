package voice

import (
	"context"

	"github.com/google/uuid"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
)

type logPresenter struct {
	logger logger.Logger
}

// NewLogPresenter returns a Presenter that only writes to the log. Used when
// no control bridge renders threads.
func NewLogPresenter(log logger.Logger) Presenter {
	return &logPresenter{logger: log}
}

func (p *logPresenter) OpenThread(ctx context.Context, title, content string) (string, error) {
	id := uuid.NewString()
	p.logger.Info(ctx, "[thread %s] %s\n%s", id, title, content)
	return id, nil
}

func (p *logPresenter) Notify(ctx context.Context, threadID, text string) error {
	p.logger.Info(ctx, "[thread %s] %s", threadID, text)
	return nil
}

func (p *logPresenter) PostFile(ctx context.Context, threadID, message, filename, content string) error {
	p.logger.Info(ctx, "[thread %s] %s (%s, %d bytes)", threadID, message, filename, len(content))
	return nil
}

func (p *logPresenter) SetTitle(ctx context.Context, threadID, title string) error {
	p.logger.Info(ctx, "[thread %s] title: %s", threadID, title)
	return nil
}
