// Package provider provides LLM provider abstraction using the Eino framework.
package provider

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/agentd-ai/agentd/internal/logging"
)

// Provider represents an LLM provider backed by an Eino ChatModel.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// ChatModel returns the Eino ChatModel for this provider.
	ChatModel() model.ToolCallingChatModel

	// Complete generates a single completion and returns the assistant text.
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// messages builds the Eino message slice for the request.
func (r *CompletionRequest) messages() []*schema.Message {
	var msgs []*schema.Message
	if r.System != "" {
		msgs = append(msgs, schema.SystemMessage(r.System))
	}
	msgs = append(msgs, schema.UserMessage(r.Prompt))
	return msgs
}

// thinkPattern matches reasoning blocks emitted by thinking-style models.
var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes <think>...</think> blocks and trims the result.
// Planner and resolver prompts expect a bare answer, not the chain of
// thought some models prepend.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkPattern.ReplaceAllString(s, ""))
}

// transientMarkers identify provider errors worth retrying.
var transientMarkers = []string{
	"rate limit",
	"rate_limit",
	"429",
	"500",
	"502",
	"503",
	"overloaded",
	"timeout",
	"connection reset",
	"connection refused",
	"EOF",
}

func isTransient(err error) bool {
	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// generate runs the ChatModel with retry on transient failures. Permanent
// errors (bad request, auth) fail immediately.
func generate(ctx context.Context, chatModel model.ToolCallingChatModel, req *CompletionRequest, opts ...model.Option) (string, error) {
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(req.Temperature)))
	}

	var out *schema.Message
	operation := func() error {
		msg, err := chatModel.Generate(ctx, req.messages(), opts...)
		if err != nil {
			if isTransient(err) {
				logging.Debug().Err(err).Msg("transient completion error, retrying")
				return err
			}
			return backoff.Permanent(err)
		}
		out = msg
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(500*time.Millisecond),
			backoff.WithMaxInterval(5*time.Second),
		), 2),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}

	return StripThinking(out.Content), nil
}
