// Package types contains the shared data model for the agentd runtime:
// input/output events, workflow plans, and configuration.
package types

import (
	"encoding/json"
	"time"
)

// SessionFlavor tags a session with the kind of source that created it.
// Routing and output handlers may vary behavior on the flavor; it is a tag,
// not a subtype.
type SessionFlavor string

const (
	// FlavorDefault is used for console, TCP and other plain sources.
	FlavorDefault SessionFlavor = "default"
	// FlavorWeb marks sessions created by web-style sources.
	FlavorWeb SessionFlavor = "web"
)

// InputEvent is a single unit of inbound traffic. Events are immutable once
// published; ID is assigned by the producer (ULID) and is the stable identity
// used for consumption claims.
type InputEvent struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	SessionID string          `json:"sessionID,omitempty"`
	Flavor    SessionFlavor   `json:"flavor,omitempty"`
	Content   json.RawMessage `json:"content"`
	Files     []string        `json:"files,omitempty"`
	Time      time.Time       `json:"time"`
}

// EffectiveSessionID returns the session this event belongs to. Events that
// carry no explicit session id fall back to their source name, so each plain
// source gets one implicit conversation.
func (e InputEvent) EffectiveSessionID() string {
	if e.SessionID != "" {
		return e.SessionID
	}
	return e.Source
}

// Text extracts the conversational text of the event. Content is either a
// bare JSON string or an object with a "content" (or legacy "line") field.
func (e InputEvent) Text() string {
	if len(e.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Content, &s); err == nil {
		return s
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(e.Content, &obj); err != nil {
		return string(e.Content)
	}
	for _, key := range []string{"content", "line", "text"} {
		if raw, ok := obj[key]; ok {
			if err := json.Unmarshal(raw, &s); err == nil {
				return s
			}
		}
	}
	return string(e.Content)
}

// OutputKind differentiates payload shapes carried by an OutputEvent.
type OutputKind string

const (
	// OutputText is a plain assistant-style text reply.
	OutputText OutputKind = "text"
	// OutputElicitation asks the user for structured input mid tool call.
	OutputElicitation OutputKind = "elicitation"
	// OutputProgress reports tool-side progress for a long call.
	OutputProgress OutputKind = "progress"
	// OutputError reports a step or planning failure.
	OutputError OutputKind = "error"
)

// OutputEvent is a unit of outbound traffic, fanned out to zero or more
// output handlers as resolved by the router. Immutable after publication.
type OutputEvent struct {
	SessionID string     `json:"sessionID"`
	Source    string     `json:"source"`
	Kind      OutputKind `json:"kind"`
	Content   any        `json:"content"`
}

// NewTextOutput builds a plain text OutputEvent.
func NewTextOutput(sessionID, source, text string) OutputEvent {
	return OutputEvent{SessionID: sessionID, Source: source, Kind: OutputText, Content: text}
}

// NewErrorOutput builds an error OutputEvent describing a failed step or plan.
func NewErrorOutput(sessionID, source, msg string) OutputEvent {
	return OutputEvent{SessionID: sessionID, Source: source, Kind: OutputError, Content: msg}
}
