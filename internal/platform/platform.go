// Package platform resolves streamer liveness across supported streaming
// platforms. Checks are network calls with caller-controlled timeouts; a
// failed check is never fatal to the scheduler, the streamer is simply
// treated as offline for that tick.
package platform

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownPlatform is returned for platforms without a registered definition.
var ErrUnknownPlatform = errors.New("unknown platform")

// StreamInfo describes a streamer's current live state.
type StreamInfo struct {
	StreamerID   string `json:"streamer_id"`
	StreamerName string `json:"streamer_name"`
	Title        string `json:"title,omitempty"`
	IsLive       bool   `json:"is_live"`
	ViewerCount  int    `json:"viewer_count,omitempty"`
}

// CheckError wraps a liveness-check failure with its platform and streamer,
// so per-streamer errors stay attributable in logs and reports.
type CheckError struct {
	Platform   string
	StreamerID string
	Err        error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("liveness check %s/%s: %v", e.Platform, e.StreamerID, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// Checker resolves live status for one streamer on one platform.
type Checker interface {
	StreamInfo(ctx context.Context, platform, streamerID string) (*StreamInfo, error)
}

// Supported reports whether a platform name has a registered definition.
func Supported(name string) bool {
	_, ok := definitions[name]
	return ok
}

// Names returns the registered platform names.
func Names() []string {
	out := make([]string, 0, len(definitions))
	for name := range definitions {
		out = append(out, name)
	}
	return out
}
