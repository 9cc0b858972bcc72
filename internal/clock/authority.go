// Package clock provides a single notion of "now" shared by the scheduler,
// the push channel, and the API, corrected for skew against an upstream
// time source.
package clock

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source returns the upstream authoritative time. Implementations may block
// on network I/O and must honor ctx.
type Source interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// Authority computes an offset (server now minus local now) on Sync and
// applies it arithmetically in Now. Before the first successful Sync the
// offset is zero: degraded to the local clock, never an error.
type Authority struct {
	source Source
	logger *zap.Logger

	mu       sync.RWMutex
	offset   time.Duration
	synced   bool
	lastSync time.Time
}

// NewAuthority creates a time authority over source. A nil source pins the
// authority to the local clock.
func NewAuthority(source Source, logger *zap.Logger) *Authority {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authority{source: source, logger: logger}
}

// Sync fetches upstream time and recomputes the offset. On failure the
// previous offset is kept (zero if never synced) and the error returned for
// logging; callers continue in degraded mode.
func (a *Authority) Sync(ctx context.Context) (time.Duration, error) {
	if a.source == nil {
		return 0, nil
	}
	serverNow, err := a.source.ServerTime(ctx)
	if err != nil {
		a.logger.Warn("time sync failed, keeping last offset", zap.Error(err))
		return a.Offset(), err
	}
	offset := serverNow.Sub(time.Now())

	a.mu.Lock()
	a.offset = offset
	a.synced = true
	a.lastSync = time.Now()
	a.mu.Unlock()

	a.logger.Debug("time synced", zap.Duration("offset", offset))
	return offset, nil
}

// Now returns the authoritative current time. Pure arithmetic, never blocks.
func (a *Authority) Now() time.Time {
	a.mu.RLock()
	off := a.offset
	a.mu.RUnlock()
	return time.Now().Add(off)
}

// Offset returns the last-known offset (server now minus local now).
func (a *Authority) Offset() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.offset
}

// Synced reports whether at least one Sync succeeded.
func (a *Authority) Synced() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.synced
}

// Run re-syncs on interval until ctx is done. Failures degrade, never abort.
func (a *Authority) Run(ctx context.Context, interval time.Duration) {
	if a.source == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, _ = a.Sync(syncCtx)
			cancel()
		}
	}
}
