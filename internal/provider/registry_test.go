package provider

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd-ai/agentd/pkg/types"
)

// stubProvider is a canned-response Provider for registry tests.
type stubProvider struct {
	id       string
	response string
}

func (s *stubProvider) ID() string                            { return s.id }
func (s *stubProvider) Name() string                          { return s.id }
func (s *stubProvider) ChatModel() model.ToolCallingChatModel { return nil }
func (s *stubProvider) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	return s.response, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&stubProvider{id: "openai"})

	p, err := r.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.ID())

	_, err = r.Get("missing")
	assert.Error(t, err)
}

func TestRegistryDefaultFromConfig(t *testing.T) {
	cfg := &types.Config{Model: "openai/gpt-4o"}
	r := NewRegistry(cfg)
	r.Register(&stubProvider{id: "openai"})
	r.Register(&stubProvider{id: "anthropic"})

	p, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "openai", p.ID())
}

func TestRegistryDefaultFallsBackToAnthropic(t *testing.T) {
	r := NewRegistry(&types.Config{})
	r.Register(&stubProvider{id: "openai"})
	r.Register(&stubProvider{id: "anthropic"})

	p, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.ID())
}

func TestRegistryDefaultAnyProvider(t *testing.T) {
	r := NewRegistry(&types.Config{})
	r.Register(&stubProvider{id: "ark"})

	p, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "ark", p.ID())
}

func TestRegistryDefaultEmpty(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Default()
	assert.Error(t, err)
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&stubProvider{id: "a"})
	r.Register(&stubProvider{id: "b"})
	assert.Len(t, r.List(), 2)
}
