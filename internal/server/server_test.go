package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sym-studio/sym-go/internal/metrics"
	"github.com/sym-studio/sym-go/internal/models"
	"github.com/sym-studio/sym-go/internal/provider"
	"github.com/sym-studio/sym-go/internal/queue"
	"github.com/sym-studio/sym-go/internal/realtime"
	"github.com/sym-studio/sym-go/internal/server"
	"github.com/sym-studio/sym-go/internal/service"
)

type stubProvider struct {
	invoke func(ctx context.Context, model string, input provider.Input) (*provider.Result, error)
}

func (s *stubProvider) Name() string { return "gemini" }

func (s *stubProvider) Invoke(ctx context.Context, model string, input provider.Input, opts ...provider.InvokeOption) (*provider.Result, error) {
	return s.invoke(ctx, model, input)
}

func (s *stubProvider) Models() []provider.ModelInfo {
	return []provider.ModelInfo{{ID: "FLASH", Model: "gemini-2.0-flash", Provider: "gemini"}}
}

type fixture struct {
	srv *httptest.Server
	hub *realtime.Hub
}

func newFixture(t *testing.T, p provider.Provider) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := provider.NewRegistry()
	if p != nil {
		registry.Register(p)
	}

	hub := realtime.NewHub(logger)
	collector := metrics.NewCollector()
	q := queue.New("ai")
	svc := service.NewGenerateService(service.NewMemoryStore(), q, registry, hub, collector, logger)

	h := server.NewHandler(svc, hub, collector, logger)
	srv := httptest.NewServer(server.Routes(h, logger))
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, hub: hub}
}

func defaultProvider() provider.Provider {
	return &stubProvider{invoke: func(ctx context.Context, model string, input provider.Input) (*provider.Result, error) {
		return &provider.Result{Output: map[string]any{"text": "hello there"}}, nil
	}}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func generateRequest() map[string]any {
	return map[string]any{
		"projectId": "p1",
		"userId":    "user-1",
		"type":      "text-generation",
		"provider":  "gemini",
		"model":     "gemini-2.0-flash",
		"input":     map[string]any{"prompt": "hello"},
	}
}

func waitForCompleted(t *testing.T, f *fixture, jobID string) models.AIJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := f.get(t, "/api/ai/jobs/"+jobID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var job models.AIJob
		decodeBody(t, resp, &job)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return models.AIJob{}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, defaultProvider())

	resp := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestGenerateAccepted(t *testing.T) {
	f := newFixture(t, defaultProvider())

	resp := f.postJSON(t, "/api/ai/generate", generateRequest())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var ack service.GenerateResponse
	decodeBody(t, resp, &ack)
	assert.NotEmpty(t, ack.JobID)
	assert.Equal(t, models.JobStatusQueued, ack.Status)

	job := waitForCompleted(t, f, ack.JobID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	out, ok := job.Output.(map[string]any)
	require.True(t, ok, "output should be an object, got %T", job.Output)
	assert.Equal(t, "hello there", out["text"])
}

func TestGenerateValidation(t *testing.T) {
	f := newFixture(t, defaultProvider())

	req := generateRequest()
	delete(req, "provider")

	resp := f.postJSON(t, "/api/ai/generate", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "VALIDATION_ERROR", body["error"]["code"])
}

func TestGenerateInvalidJSON(t *testing.T) {
	f := newFixture(t, defaultProvider())

	resp, err := http.Post(f.srv.URL+"/api/ai/generate", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJobNotFound(t *testing.T) {
	f := newFixture(t, defaultProvider())

	resp := f.get(t, "/api/ai/jobs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "NOT_FOUND", body["error"]["code"])
}

func TestListJobs(t *testing.T) {
	f := newFixture(t, defaultProvider())

	ack := struct{ JobID string }{}
	resp := f.postJSON(t, "/api/ai/generate", generateRequest())
	decodeBody(t, resp, &ack)
	waitForCompleted(t, f, ack.JobID)

	listResp := f.get(t, "/api/ai/jobs?userId=user-1")
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var body struct {
		Jobs []models.AIJob `json:"jobs"`
	}
	decodeBody(t, listResp, &body)
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, ack.JobID, body.Jobs[0].ID)

	// userId is required
	badResp := f.get(t, "/api/ai/jobs")
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
	badResp.Body.Close()
}

func TestQueueJobNotFound(t *testing.T) {
	f := newFixture(t, defaultProvider())

	resp := f.get(t, "/api/ai/queue/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestListModels(t *testing.T) {
	f := newFixture(t, defaultProvider())

	resp := f.get(t, "/api/ai/models")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Models []provider.ModelInfo `json:"models"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Models, 1)
	assert.Equal(t, "gemini", body.Models[0].Provider)
}

func TestStats(t *testing.T) {
	f := newFixture(t, defaultProvider())

	ack := struct{ JobID string }{}
	resp := f.postJSON(t, "/api/ai/generate", generateRequest())
	decodeBody(t, resp, &ack)
	waitForCompleted(t, f, ack.JobID)

	statsResp := f.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, statsResp.StatusCode)

	var snap metrics.Snapshot
	decodeBody(t, statsResp, &snap)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
	require.Contains(t, snap.Providers, "gemini")
	assert.Equal(t, int64(1), snap.Providers["gemini"].Count)
}

func TestWebsocketUnknownNamespace(t *testing.T) {
	f := newFixture(t, defaultProvider())

	resp := f.get(t, "/ws/chat")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestWebsocketReceivesJobCompletion(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, &stubProvider{invoke: func(ctx context.Context, model string, input provider.Input) (*provider.Result, error) {
		<-release
		return &provider.Result{Output: map[string]any{"text": "done"}}, nil
	}})

	ack := struct{ JobID string }{}
	resp := f.postJSON(t, "/api/ai/generate", generateRequest())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	decodeBody(t, resp, &ack)

	// Subscribe to the job room while the provider is still blocked.
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/ai-jobs"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	payload, _ := json.Marshal(map[string]string{"jobId": ack.JobID})
	require.NoError(t, ws.WriteJSON(realtime.Message{Event: "job:subscribe", Payload: payload}))

	require.Eventually(t, func() bool {
		return f.hub.RoomSize(realtime.NamespaceAIJobs, realtime.JobRoom(ack.JobID)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	close(release)

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg realtime.Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "job:completed", msg.Event)

	var event map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, ack.JobID, event["jobId"])
	assert.Equal(t, "completed", event["status"])
}
