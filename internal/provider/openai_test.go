package provider

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"
)

func TestOpenAIProvider_Integration(t *testing.T) {
	// Load .env file from project root
	_ = godotenv.Load("../../.env")

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	modelID := os.Getenv("OPENAI_MODEL_ID")
	if modelID == "" {
		modelID = "gpt-4o-mini" // cheaper for testing
	}

	ctx := context.Background()

	provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: 1024,
	})
	if err != nil {
		t.Fatalf("Failed to create OpenAI provider: %v", err)
	}

	if provider.ID() != "openai" {
		t.Errorf("Expected ID 'openai', got '%s'", provider.ID())
	}
	if provider.Name() != "OpenAI" {
		t.Errorf("Expected Name 'OpenAI', got '%s'", provider.Name())
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
		t.Logf("OpenAI Response: %s", out)
	})

	t.Run("SystemPrompt", func(t *testing.T) {
		out, err := provider.Complete(ctx, &CompletionRequest{
			System:    "You only ever answer with valid JSON.",
			Prompt:    `Return a JSON array containing the number 1.`,
			MaxTokens: 50,
		})
		if err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}
		if out == "" {
			t.Error("Expected non-empty response")
		}
		t.Logf("OpenAI Response: %s", out)
	})
}
