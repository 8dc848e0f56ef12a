package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sym-studio/sym-go/internal/apperr"
	"github.com/sym-studio/sym-go/internal/provider"
)

type stubProvider struct {
	name   string
	models []provider.ModelInfo
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Invoke(ctx context.Context, model string, input provider.Input, opts ...provider.InvokeOption) (*provider.Result, error) {
	return &provider.Result{Output: "ok"}, nil
}

func (s *stubProvider) Models() []provider.ModelInfo { return s.models }

func TestRegistryGet(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&stubProvider{name: "gemini"})

	p, err := reg.Get("gemini")
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())
	assert.True(t, reg.Has("gemini"))
}

func TestRegistryUnknownProvider(t *testing.T) {
	reg := provider.NewRegistry()

	_, err := reg.Get("no-such-provider")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	assert.False(t, reg.Has("no-such-provider"))
}

func TestRegistryReplacesOnReRegister(t *testing.T) {
	reg := provider.NewRegistry()
	first := &stubProvider{name: "replicate"}
	second := &stubProvider{name: "replicate"}
	reg.Register(first)
	reg.Register(second)

	p, err := reg.Get("replicate")
	require.NoError(t, err)
	assert.Same(t, second, p.(*stubProvider))
}

func TestRegistryModelsSorted(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&stubProvider{name: "replicate", models: []provider.ModelInfo{
		{ID: "SDXL", Provider: "replicate"},
	}})
	reg.Register(&stubProvider{name: "gemini", models: []provider.ModelInfo{
		{ID: "PRO", Provider: "gemini"},
		{ID: "FLASH", Provider: "gemini"},
	}})

	models := reg.Models()
	require.Len(t, models, 3)
	assert.Equal(t, "FLASH", models[0].ID)
	assert.Equal(t, "PRO", models[1].ID)
	assert.Equal(t, "SDXL", models[2].ID)
}
