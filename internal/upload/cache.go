package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
)

// CacheOptions configure handle lifetime and error handling.
type CacheOptions struct {
	RefreshInterval time.Duration
	ErrorThreshold  int
	QuotaCooldown   time.Duration
	// OnEvent is told about "create", "create_failed", "quota" and "reset".
	OnEvent func(event string)
}

// ConnectionCache holds one Service handle, recreating it when it gets old,
// has failed too often, or after a quota cooldown ends.
type ConnectionCache struct {
	factory Factory
	opts    CacheOptions
	log     logger.Logger
	now     func() time.Time
	group   singleflight.Group

	mu            sync.Mutex
	handle        Service
	lastRefresh   time.Time
	errorCount    int
	cooldownUntil time.Time
}

// CacheStats is a read-only view of the cache for status endpoints.
type CacheStats struct {
	Connected     bool      `json:"connected"`
	LastRefresh   time.Time `json:"last_refresh"`
	ErrorCount    int       `json:"error_count"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}

// NewConnectionCache creates an empty cache that opens handles with factory.
func NewConnectionCache(factory Factory, opts CacheOptions, log logger.Logger) *ConnectionCache {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Hour
	}
	if opts.ErrorThreshold <= 0 {
		opts.ErrorThreshold = 10
	}
	if opts.QuotaCooldown <= 0 {
		opts.QuotaCooldown = 5 * time.Minute
	}
	return &ConnectionCache{
		factory: factory,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

// Get returns a usable handle, creating one when the cached handle is invalid
// or forceRefresh is set. It returns false during a quota cooldown or when
// creation fails.
func (c *ConnectionCache) Get(ctx context.Context, forceRefresh bool) (Service, bool) {
	c.mu.Lock()
	now := c.now()
	if now.Before(c.cooldownUntil) {
		until := c.cooldownUntil
		c.mu.Unlock()
		c.log.Warn(ctx, "Upload service in quota cooldown until %s", until.Format(time.RFC3339))
		return nil, false
	}
	if !forceRefresh && c.validLocked(now) {
		svc := c.handle
		c.mu.Unlock()
		return svc, true
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("connect", func() (interface{}, error) {
		svc, err := c.factory(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.handle = svc
		c.lastRefresh = c.now()
		c.errorCount = 0
		c.mu.Unlock()
		return svc, nil
	})
	if err != nil {
		c.log.Error(ctx, "Failed to create upload service: %v", err)
		c.emit("create_failed")
		c.ReportError(err)
		return nil, false
	}
	c.emit("create")

	// a quota error may have arrived while we were connecting
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Before(c.cooldownUntil) {
		return nil, false
	}
	return v.(Service), true
}

// ReportError records a failed call made with the cached handle.
func (c *ConnectionCache) ReportError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	if IsQuotaError(err) {
		c.mu.Lock()
		c.cooldownUntil = c.now().Add(c.opts.QuotaCooldown)
		c.handle = nil
		c.errorCount = 0
		until := c.cooldownUntil
		c.mu.Unlock()
		c.log.Warn(context.Background(), "Upload quota exceeded, cooling down until %s", until.Format(time.RFC3339))
		c.emit("quota")
		return
	}

	c.mu.Lock()
	c.errorCount++
	count := c.errorCount
	if count >= c.opts.ErrorThreshold {
		c.handle = nil
	}
	c.mu.Unlock()

	if count >= c.opts.ErrorThreshold {
		c.log.Warn(context.Background(), "Upload service hit %d errors, dropping cached handle", count)
	}
}

// Reset drops the cached handle. An active cooldown is kept.
func (c *ConnectionCache) Reset() {
	c.mu.Lock()
	had := c.handle != nil
	c.handle = nil
	c.errorCount = 0
	c.lastRefresh = time.Time{}
	c.mu.Unlock()
	if had {
		c.emit("reset")
	}
}

// InCooldown reports whether a quota cooldown is active.
func (c *ConnectionCache) InCooldown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Before(c.cooldownUntil)
}

func (c *ConnectionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{
		Connected:   c.handle != nil,
		LastRefresh: c.lastRefresh,
		ErrorCount:  c.errorCount,
	}
	if c.now().Before(c.cooldownUntil) {
		s.CooldownUntil = c.cooldownUntil
	}
	return s
}

func (c *ConnectionCache) validLocked(now time.Time) bool {
	if c.handle == nil {
		return false
	}
	if now.Sub(c.lastRefresh) >= c.opts.RefreshInterval {
		return false
	}
	return c.errorCount < c.opts.ErrorThreshold
}

func (c *ConnectionCache) emit(event string) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(event)
	}
}
