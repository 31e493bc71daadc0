package scheduler

import (
	"sync"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/metrics"
	"github.com/nguyentantai21042004/meeting-recorder/internal/worker"
)

type queued struct {
	sessionID string
	since     time.Time
}

type implScheduler struct {
	bind    BindFunc
	metrics *metrics.Metrics
	logger  logger.Logger
	now     func() time.Time

	mu       sync.Mutex
	pool     []*worker.Worker
	queue    []queued
	bySess   map[string]*worker.Worker
	byWorker map[string]string
}

// New creates a Scheduler that calls bind for every claimed worker.
func New(bind BindFunc, m *metrics.Metrics, log logger.Logger) Scheduler {
	return &implScheduler{
		bind:     bind,
		metrics:  m,
		logger:   log,
		now:      time.Now,
		bySess:   make(map[string]*worker.Worker),
		byWorker: make(map[string]string),
	}
}
