package types

import (
	"strconv"
	"time"
)

// Config is the full agentd configuration. The core packages receive the
// resolved struct; only internal/config and the CLI read files or env.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Model selects the default completion model as "provider/model",
	// e.g. "openai/gpt-4o" or "anthropic/claude-sonnet-4-20250514".
	Model string `json:"model,omitempty"`

	// Provider configs keyed by provider id.
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// ToolServer configures the remote tool-protocol endpoint.
	ToolServer ToolServerConfig `json:"toolServer,omitempty"`

	// Session tunes the session-actor runtime.
	Session SessionConfig `json:"session,omitempty"`

	// Channels enables/configures the bundled boundary channels.
	Channels ChannelsConfig `json:"channels,omitempty"`

	// Persona names the agent and sets its reply style.
	Persona Persona `json:"persona,omitempty"`
}

// ProviderConfig holds configuration for one completion provider.
type ProviderConfig struct {
	APIKey    string `json:"apiKey,omitempty"`
	BaseURL   string `json:"baseURL,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
	Disable   bool   `json:"disable,omitempty"`
}

// ToolServerConfig configures the tool protocol client.
type ToolServerConfig struct {
	// Addr is the TCP address of the tool server, e.g. "127.0.0.1:9001".
	Addr string `json:"addr,omitempty"`
	// DialTimeout bounds a single connection attempt.
	DialTimeout Duration `json:"dialTimeout,omitempty"`
	// ElicitationTimeout bounds a single elicitation wait.
	ElicitationTimeout Duration `json:"elicitationTimeout,omitempty"`
}

// SessionConfig tunes session-actor behavior.
type SessionConfig struct {
	// IdleTimeout reaps session actors with no traffic for this long.
	// Zero selects the default (30m); negative disables the reaper.
	IdleTimeout Duration `json:"idleTimeout,omitempty"`
	// InboxSize is the per-session inbox buffer.
	InboxSize int `json:"inboxSize,omitempty"`
	// IntentGate enables the completion-backed respond/ignore gate.
	IntentGate bool `json:"intentGate,omitempty"`
}

// ChannelsConfig enables the bundled channels.
type ChannelsConfig struct {
	Console bool   `json:"console,omitempty"`
	TCPAddr string `json:"tcpAddr,omitempty"`
	WebAddr string `json:"webAddr,omitempty"`
}

// Duration is a time.Duration that unmarshals from a JSON string like "5m"
// or from integer nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		parsed, err := time.ParseDuration(string(b[1 : len(b)-1]))
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	ns, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }
