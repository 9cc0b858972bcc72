package platform

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPChecker resolves liveness through each platform's public API.
type HTTPChecker struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPChecker creates a liveness checker. The overall deadline per check
// is the caller's context; the client timeout is a hard upper bound.
func NewHTTPChecker(timeout time.Duration, logger *zap.Logger) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPChecker{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// StreamInfo checks whether the streamer is live.
func (c *HTTPChecker) StreamInfo(ctx context.Context, platformName, streamerID string) (*StreamInfo, error) {
	def, ok := definitions[platformName]
	if !ok {
		return nil, &CheckError{Platform: platformName, StreamerID: streamerID, Err: ErrUnknownPlatform}
	}
	info, err := def.check(ctx, c.client, streamerID)
	if err != nil {
		return nil, &CheckError{Platform: platformName, StreamerID: streamerID, Err: err}
	}
	return info, nil
}
