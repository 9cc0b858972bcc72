package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client is the HTTP client for the capture agent. The agent exposes
// POST /sessions, GET /sessions/{id}, DELETE /sessions/{id}.
type Client struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
	stopTimeout  time.Duration
	logger       *zap.Logger
}

// NewClient creates a capture agent client.
func NewClient(baseURL string, pollInterval, stopTimeout time.Duration, logger *zap.Logger) *Client {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: 15 * time.Second},
		pollInterval: pollInterval,
		stopTimeout:  stopTimeout,
		logger:       logger,
	}
}

type agentSessionState struct {
	ID            string `json:"id"`
	State         string `json:"state"` // running | completed | failed | stopped
	FileSize      int64  `json:"file_size"`
	Error         string `json:"error,omitempty"`
	PlatformError string `json:"platform_error,omitempty"`
}

// Start asks the agent to begin capturing and returns a session handle that
// polls the agent until the capture ends.
func (c *Client) Start(ctx context.Context, req StartRequest) (Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &StartError{Platform: req.Platform, StreamerID: req.StreamerID, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, &StartError{Platform: req.Platform, StreamerID: req.StreamerID, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &StartError{Platform: req.Platform, StreamerID: req.StreamerID, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, &StartError{Platform: req.Platform, StreamerID: req.StreamerID,
			Err: fmt.Errorf("agent status %d", resp.StatusCode)}
	}
	var state agentSessionState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, &StartError{Platform: req.Platform, StreamerID: req.StreamerID, Err: err}
	}

	s := &clientSession{
		client: c,
		id:     state.ID,
		done:   make(chan Result, 1),
	}
	go s.watch()
	return s, nil
}

type clientSession struct {
	client *Client
	id     string
	done   chan Result

	stopOnce sync.Once
	stopErr  error
	finished sync.Once
}

func (s *clientSession) Done() <-chan Result { return s.done }

// Stop asks the agent to end the capture; the terminal result still arrives
// through Done via the watch loop.
func (s *clientSession) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, s.client.stopTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.client.baseURL+"/sessions/"+s.id, nil)
		if err != nil {
			s.stopErr = err
			return
		}
		resp, err := s.client.http.Do(req)
		if err != nil {
			s.stopErr = err
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
			s.stopErr = fmt.Errorf("agent stop status %d", resp.StatusCode)
		}
	})
	return s.stopErr
}

// watch polls the agent until the session leaves the running state. Poll
// errors count toward a failure budget so a dead agent eventually finalizes
// the session as failed instead of hanging the recording forever.
func (s *clientSession) watch() {
	const maxConsecutiveErrors = 6
	ticker := time.NewTicker(s.client.pollInterval)
	defer ticker.Stop()

	errCount := 0
	for range ticker.C {
		state, err := s.poll()
		if err != nil {
			errCount++
			if errCount >= maxConsecutiveErrors {
				s.finish(Result{
					Outcome:    OutcomeFailed,
					AgentError: fmt.Sprintf("capture agent unreachable: %v", err),
				})
				return
			}
			continue
		}
		errCount = 0

		switch state.State {
		case "completed":
			s.finish(Result{Outcome: OutcomeCompleted, FileSize: state.FileSize})
			return
		case "failed":
			s.finish(Result{
				Outcome:       OutcomeFailed,
				FileSize:      state.FileSize,
				AgentError:    state.Error,
				PlatformError: state.PlatformError,
			})
			return
		case "stopped":
			s.finish(Result{Outcome: OutcomeStopped, FileSize: state.FileSize})
			return
		}
	}
}

func (s *clientSession) poll() (*agentSessionState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.pollInterval)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.baseURL+"/sessions/"+s.id, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent status %d", resp.StatusCode)
	}
	var state agentSessionState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *clientSession) finish(r Result) {
	s.finished.Do(func() {
		s.done <- r
		close(s.done)
	})
}
