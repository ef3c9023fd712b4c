package provider

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"
)

func TestAnthropicProvider_Integration(t *testing.T) {
	// Load .env file from project root
	_ = godotenv.Load("../../.env")

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping integration test")
	}

	ctx := context.Background()

	provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
		APIKey:    apiKey,
		Model:     "claude-3-5-haiku-20241022", // cheaper for testing
		MaxTokens: 1024,
	})
	if err != nil {
		t.Fatalf("Failed to create Anthropic provider: %v", err)
	}

	if provider.ID() != "anthropic" {
		t.Errorf("Expected ID 'anthropic', got '%s'", provider.ID())
	}

	t.Run("SimpleCompletion", func(t *testing.T) {
		out, err := provider.Complete(ctx, &CompletionRequest{
			Prompt:    "Say 'Hello, World!' and nothing else.",
			MaxTokens: 100,
		})
		if err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}
		if out == "" {
			t.Error("Expected non-empty response")
		}
		t.Logf("Anthropic Response: %s", out)
	})
}
