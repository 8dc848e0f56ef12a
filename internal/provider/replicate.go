package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sym-studio/sym-go/internal/apperr"
)

const replicateName = "replicate"

// ReplicateAPIBase is the Replicate REST API endpoint.
const ReplicateAPIBase = "https://api.replicate.com/v1"

// DefaultPollInterval is the delay between prediction status polls.
const DefaultPollInterval = 2 * time.Second

// Replicate model version strings (owner/model:version).
const (
	ReplicateSDXL       = "stability-ai/sdxl:39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b"
	ReplicateRealESRGAN = "nightmareai/real-esrgan:f121d640bd286e1fdc67f9799164c1d5be36ff74576ee11c803ae5b665dd46aa"
)

// ReplicateProvider is the polling adapter: it creates a remote prediction
// and polls its status until the remote reports a terminal state.
type ReplicateProvider struct {
	token        string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration

	// maxWait bounds the poll loop. Zero polls forever, matching the
	// historical behavior.
	maxWait time.Duration
}

var _ Provider = (*ReplicateProvider)(nil)

// ReplicateOption configures the Replicate provider.
type ReplicateOption func(*ReplicateProvider)

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(url string) ReplicateOption {
	return func(p *ReplicateProvider) { p.baseURL = strings.TrimSuffix(url, "/") }
}

// WithPollInterval overrides the delay between status polls.
func WithPollInterval(d time.Duration) ReplicateOption {
	return func(p *ReplicateProvider) { p.pollInterval = d }
}

// WithMaxWait bounds how long a prediction may be polled before the
// invocation fails with an external-service error.
func WithMaxWait(d time.Duration) ReplicateOption {
	return func(p *ReplicateProvider) { p.maxWait = d }
}

// NewReplicate creates a Replicate provider.
func NewReplicate(token string, opts ...ReplicateOption) (*ReplicateProvider, error) {
	if token == "" {
		return nil, apperr.Validation("replicate provider requires an API token")
	}
	p := &ReplicateProvider{
		token:        token,
		baseURL:      ReplicateAPIBase,
		client:       &http.Client{},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the registry key.
func (p *ReplicateProvider) Name() string { return replicateName }

// prediction is the wire shape of a Replicate prediction.
type prediction struct {
	ID      string         `json:"id"`
	Status  string         `json:"status"`
	Output  any            `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Logs    string         `json:"logs,omitempty"`
	Metrics map[string]any `json:"metrics,omitempty"`
}

// createRequest is the request body for creating a prediction.
type createRequest struct {
	Version string `json:"version"`
	Input   Input  `json:"input"`
}

// Invoke creates a prediction and polls it every pollInterval until the
// remote status reaches succeeded, failed, or canceled. Each poll emits one
// Progress snapshot to a channel supplied via WithProgress.
func (p *ReplicateProvider) Invoke(ctx context.Context, model string, input Input, opts ...InvokeOption) (*Result, error) {
	o := applyOptions(opts)
	defer o.done()

	slog.Info("starting prediction", "provider", replicateName, "model", model)

	pred, err := p.createPrediction(ctx, model, input)
	if err != nil {
		return nil, err
	}

	slog.Info("prediction created", "provider", replicateName, "id", pred.ID, "status", pred.Status)

	if res, terminal, err := p.resolve(pred); terminal {
		return res, err
	}

	start := time.Now()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, apperr.ExternalService("Replicate", ctx.Err().Error())
		case <-ticker.C:
		}

		cur, err := p.getPrediction(ctx, pred.ID)
		if err != nil {
			return nil, err
		}

		o.emit(Progress{ID: cur.ID, Status: cur.Status, Logs: cur.Logs})

		if res, terminal, err := p.resolve(cur); terminal {
			if err == nil {
				slog.Info("prediction completed", "provider", replicateName, "id", cur.ID)
			}
			return res, err
		}

		if p.maxWait > 0 && time.Since(start) > p.maxWait {
			return nil, apperr.ExternalService("Replicate",
				fmt.Sprintf("prediction %s did not finish within %s", pred.ID, p.maxWait))
		}
	}
}

// resolve maps a prediction into its terminal outcome. The bool is false
// while the prediction is still running.
func (p *ReplicateProvider) resolve(pred *prediction) (*Result, bool, error) {
	switch pred.Status {
	case "succeeded":
		return &Result{Output: pred.Output, Metrics: pred.Metrics}, true, nil
	case "failed":
		reason := pred.Error
		if reason == "" {
			reason = "prediction failed"
		}
		return nil, true, apperr.ExternalService("Replicate", reason)
	case "canceled":
		reason := pred.Error
		if reason == "" {
			reason = "prediction canceled"
		}
		return nil, true, apperr.ExternalService("Replicate", reason)
	default:
		return nil, false, nil
	}
}

// createPrediction POSTs a new prediction. The model string is
// owner/model:version; only the version hash is sent.
func (p *ReplicateProvider) createPrediction(ctx context.Context, model string, input Input) (*prediction, error) {
	version := model
	if idx := strings.LastIndex(model, ":"); idx >= 0 {
		version = model[idx+1:]
	}

	body, err := json.Marshal(createRequest{Version: version, Input: input})
	if err != nil {
		return nil, apperr.Internal("marshal prediction request: %v", err)
	}

	return p.doRequest(ctx, http.MethodPost, p.baseURL+"/predictions", bytes.NewReader(body))
}

// getPrediction fetches the current state of a prediction.
func (p *ReplicateProvider) getPrediction(ctx context.Context, id string) (*prediction, error) {
	return p.doRequest(ctx, http.MethodGet, p.baseURL+"/predictions/"+id, nil)
}

func (p *ReplicateProvider) doRequest(ctx context.Context, method, url string, body io.Reader) (*prediction, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apperr.Internal("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.ExternalService("Replicate", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return nil, apperr.ExternalService("Replicate",
			fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(data)))
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, apperr.ExternalService("Replicate", fmt.Sprintf("decode response: %v", err))
	}
	return &pred, nil
}

// Models lists the Replicate catalog entries.
func (p *ReplicateProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "SDXL", Model: ReplicateSDXL, Provider: replicateName},
		{ID: "REAL_ESRGAN", Model: ReplicateRealESRGAN, Provider: replicateName},
	}
}
