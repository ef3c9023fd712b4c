// Package provider provides the LLM provider abstraction layer for agentd.
//
// This package implements a unified interface for different Large Language
// Model providers using the Eino framework. It supports Anthropic Claude,
// OpenAI GPT (and OpenAI-compatible endpoints), and Volcengine ARK models.
//
// # Core Components
//
//   - Provider: interface every LLM provider implements
//   - Registry: manages and selects among configured providers
//   - CompletionRequest: a single system+user prompt completion
//
// The runtime uses providers for short structured completions: planning a
// workflow from a user request, resolving missing parameters, coercing
// free-form elicitation replies, and the respond/ignore intent gate. All of
// these want one assistant message back, so Complete returns plain text
// rather than a stream.
//
// # Supported Providers
//
// Anthropic (Claude), with direct API access or AWS Bedrock and extended
// thinking support:
//
//	provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
//	    APIKey:    "sk-...",
//	    Model:     "claude-sonnet-4-20250514",
//	    MaxTokens: 8192,
//	})
//
// OpenAI, including Azure OpenAI and self-hosted OpenAI-compatible servers:
//
//	provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
//	    APIKey:    "sk-...",
//	    Model:     "gpt-4o",
//	    MaxTokens: 4096,
//	})
//
// Volcengine ARK:
//
//	provider, err := NewArkProvider(ctx, &ArkConfig{
//	    APIKey:    "...",
//	    Model:     "endpoint-id",
//	    MaxTokens: 4096,
//	})
//
// # Registry Usage
//
//	registry, err := InitializeProviders(ctx, cfg)
//	p, err := registry.Default()
//	answer, err := p.Complete(ctx, &provider.CompletionRequest{
//	    System: "Answer with pure JSON.",
//	    Prompt: userText,
//	})
//
// # Reliability
//
// Transient failures (rate limits, 5xx, connection drops) are retried with
// exponential backoff; permanent errors fail immediately. Reasoning blocks
// emitted by thinking-style models are stripped from the returned text so
// downstream JSON parsing sees only the answer.
package provider
