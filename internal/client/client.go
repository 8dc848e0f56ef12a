// Package client provides a REST and websocket client for the sym server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sym-studio/sym-go/internal/metrics"
	"github.com/sym-studio/sym-go/internal/models"
	"github.com/sym-studio/sym-go/internal/provider"
	"github.com/sym-studio/sym-go/internal/queue"
	"github.com/sym-studio/sym-go/internal/realtime"
	"github.com/sym-studio/sym-go/internal/service"
)

// Client talks to a sym server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client. If baseURL is empty, uses the SYM_SERVER_URL
// env var or defaults to localhost:8080. Timeout can be configured via
// SYM_CLIENT_TIMEOUT (default 10m, generation jobs can be slow).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("SYM_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := 10 * time.Minute
	if t := os.Getenv("SYM_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiErrorBody is the server's error envelope.
type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends one JSON request and decodes the response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorBody
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Generate submits a generation request. The server answers as soon as the
// job is queued; use GetJob or WatchJob to follow it.
func (c *Client) Generate(ctx context.Context, req service.GenerateRequest) (*service.GenerateResponse, error) {
	var ack service.GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/api/ai/generate", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// GetJob retrieves the durable record of a job.
func (c *Client) GetJob(ctx context.Context, id string) (*models.AIJob, error) {
	var job models.AIJob
	if err := c.do(ctx, http.MethodGet, "/api/ai/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the newest jobs created by a user.
func (c *Client) ListJobs(ctx context.Context, userID string, limit int) ([]models.AIJob, error) {
	path := "/api/ai/jobs?userId=" + userID
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}

	var body struct {
		Jobs []models.AIJob `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Jobs, nil
}

// GetQueueJob returns the ephemeral queue-side state of a submission.
func (c *Client) GetQueueJob(ctx context.Context, id string) (*queue.Job, error) {
	var job queue.Job
	if err := c.do(ctx, http.MethodGet, "/api/ai/queue/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListModels returns the server's model catalog.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	var body struct {
		Models []provider.ModelInfo `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/ai/models", nil, &body); err != nil {
		return nil, err
	}
	return body.Models, nil
}

// Stats returns in-memory runtime statistics (reset on server restart).
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// JobEvent is one realtime notification about a watched job.
type JobEvent struct {
	Event   string
	Payload map[string]any
}

// Terminal reports whether the event ends the job's lifecycle.
func (e JobEvent) Terminal() bool {
	return e.Event == "job:completed" || e.Event == "job:failed"
}

// WatchJob subscribes to a job's realtime events and invokes onEvent for
// each one until the job finishes, the context is cancelled, or onEvent
// returns an error.
func (c *Client) WatchJob(ctx context.Context, jobID string, onEvent func(JobEvent) error) error {
	wsURL := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/ws/" + string(realtime.NamespaceAIJobs)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	payload, _ := json.Marshal(map[string]string{"jobId": jobID})
	if err := conn.WriteJSON(realtime.Message{Event: "job:subscribe", Payload: payload}); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	// Close the socket when the context ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		event := JobEvent{Event: msg.Event}
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &event.Payload); err != nil {
				return fmt.Errorf("unmarshal event payload: %w", err)
			}
		}

		if err := onEvent(event); err != nil {
			return err
		}
		if event.Terminal() {
			return nil
		}
	}
}
