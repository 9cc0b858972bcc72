package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSource reads the upstream time from a JSON endpoint shaped like the
// /system/time contract: {"server_time": "<RFC3339Nano>"}.
type HTTPSource struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPSource creates an HTTP time source with a per-request timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{URL: url, Client: http.DefaultClient, Timeout: timeout}
}

// ServerTime fetches the upstream server time.
func (s *HTTPSource) ServerTime(ctx context.Context) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch time: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("time source status: %d", resp.StatusCode)
	}

	var body struct {
		ServerTime time.Time `json:"server_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("decode time: %w", err)
	}
	if body.ServerTime.IsZero() {
		return time.Time{}, fmt.Errorf("time source returned zero time")
	}
	return body.ServerTime, nil
}
