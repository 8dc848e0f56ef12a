// Package provider normalizes remote AI invocations behind a single
// capability interface. One-shot providers (Gemini, Bedrock) and
// create-then-poll providers (Replicate) all return the same result shape
// or a classified external-service error.
package provider

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/sym-studio/sym-go/internal/apperr"
)

// Input is the opaque model input submitted by the client.
type Input map[string]any

// Result is the normalized output of a provider invocation. There is no
// partial or successful-with-warning state.
type Result struct {
	// Output is provider-shaped: text plus usage for one-shot providers,
	// the prediction output for polling providers.
	Output any

	// Usage holds token accounting reported by one-shot providers.
	Usage map[string]any

	// Metrics holds timing data reported by polling providers.
	Metrics map[string]any
}

// Progress is one status snapshot from a polling provider.
type Progress struct {
	ID     string
	Status string
	Logs   string
}

// ModelInfo describes one invokable model in the catalog.
type ModelInfo struct {
	ID       string `json:"id"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// Provider is the capability every adapter implements.
type Provider interface {
	// Name is the registry key ("gemini", "replicate", "bedrock").
	Name() string

	// Invoke runs the model and blocks until a terminal outcome. Failures
	// are returned as *apperr.Error with CodeExternalService.
	Invoke(ctx context.Context, model string, input Input, opts ...InvokeOption) (*Result, error)

	// Models lists the models this provider exposes.
	Models() []ModelInfo
}

type invokeOptions struct {
	progress chan<- Progress
}

// InvokeOption configures a single invocation.
type InvokeOption func(*invokeOptions)

// WithProgress attaches a channel that receives one snapshot per poll of a
// polling provider. The adapter owns the channel from this point: sends
// never block (snapshots are dropped if the receiver lags) and the channel
// is closed when Invoke returns, so callers can simply range over it.
// One-shot providers emit nothing and just close it.
func WithProgress(ch chan<- Progress) InvokeOption {
	return func(o *invokeOptions) {
		o.progress = ch
	}
}

func applyOptions(opts []InvokeOption) *invokeOptions {
	o := &invokeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// emit sends a snapshot without blocking.
func (o *invokeOptions) emit(p Progress) {
	if o.progress == nil {
		return
	}
	select {
	case o.progress <- p:
	default:
	}
}

// done closes the progress channel, ending the caller's iteration.
func (o *invokeOptions) done() {
	if o.progress != nil {
		close(o.progress)
	}
}

// Registry holds providers keyed by name. Selection happens here once;
// callers never branch on provider names.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. Re-registering a name replaces the previous
// provider and is logged, matching the queue's last-write-wins contract.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; exists {
		slog.Warn("provider re-registered, replacing previous", "provider", p.Name())
	}
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, apperr.Internal("unknown AI provider: %s", name)
	}
	return p, nil
}

// Has reports whether a provider is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns the aggregated model catalog across all providers,
// sorted by provider then id for stable output.
func (r *Registry) Models() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ModelInfo
	for _, p := range r.providers {
		out = append(out, p.Models()...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}
