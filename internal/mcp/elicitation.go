package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/pkg/types"
)

// ElicitState tracks one elicitation exchange.
type ElicitState string

const (
	StateIdle          ElicitState = "idle"
	StateAwaitingReply ElicitState = "awaiting_reply"
	StateResolved      ElicitState = "resolved"
	StateTimedOut      ElicitState = "timed_out"
	StateCancelled     ElicitState = "cancelled"
)

// DefaultElicitationTimeout bounds how long a prompt waits for a reply.
const DefaultElicitationTimeout = 5 * time.Minute

// cancelWords abort an elicitation when they form the whole reply.
var cancelWords = map[string]struct{}{
	"cancel":     {},
	"abort":      {},
	"stop":       {},
	"quit":       {},
	"nevermind":  {},
	"never mind": {},
	"forget it":  {},
}

// CoerceFunc turns a free-form reply into JSON matching the schema. Used
// when the user answers "chilly, about five degrees" instead of
// {"temperature": 5}.
type CoerceFunc func(ctx context.Context, reply string, schema json.RawMessage) (json.RawMessage, error)

// Elicitor answers server-initiated elicitation requests by prompting the
// user over the output bus and waiting for their reply on the input bus.
//
// The tool protocol carries no session information in elicitation requests;
// each session's client gets its own handler via HandlerFor, so exchanges
// for different sessions run independently.
type Elicitor struct {
	in      *event.InputBus
	out     *event.OutputBus
	coerce  CoerceFunc
	timeout time.Duration

	mu     sync.Mutex
	states map[string]ElicitState
}

// NewElicitor creates an elicitor. coerce may be nil, in which case replies
// must be valid JSON. A zero timeout selects the default.
func NewElicitor(in *event.InputBus, out *event.OutputBus, coerce CoerceFunc, timeout time.Duration) *Elicitor {
	if timeout == 0 {
		timeout = DefaultElicitationTimeout
	}
	return &Elicitor{
		in:      in,
		out:     out,
		coerce:  coerce,
		timeout: timeout,
		states:  make(map[string]ElicitState),
	}
}

// HandlerFor returns a RequestHandler answering server requests on behalf
// of one session. elicitation/create prompts that session's user;
// notifications/progress is republished on the output bus.
func (e *Elicitor) HandlerFor(sessionID, source string) RequestHandler {
	return func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		switch method {
		case "elicitation/create":
			var req ElicitationRequest
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("elicitation params: %w", err)
			}
			return e.Elicit(ctx, sessionID, source, req)
		case "notifications/progress":
			e.out.Publish(types.OutputEvent{
				SessionID: sessionID,
				Source:    source,
				Kind:      types.OutputProgress,
				Content:   json.RawMessage(params),
			})
			return nil, nil
		default:
			return nil, fmt.Errorf("method not found: %s", method)
		}
	}
}

// State returns the state of the session's current (or last) exchange.
func (e *Elicitor) State(sessionID string) ElicitState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.states[sessionID]; ok {
		return s
	}
	return StateIdle
}

func (e *Elicitor) setState(sessionID string, s ElicitState) {
	e.mu.Lock()
	e.states[sessionID] = s
	e.mu.Unlock()
}

// Forget drops the recorded exchange state for a session.
func (e *Elicitor) Forget(sessionID string) {
	e.mu.Lock()
	delete(e.states, sessionID)
	e.mu.Unlock()
}

// Elicit prompts the session and waits for a usable reply. Replies are
// claimed on the input bus so the session actor skips them. The reply must
// be JSON valid against the requested schema; free-form text goes through
// the coercer when one is configured. Cancel words, timeout, and context
// cancellation all resolve to a cancel action rather than an error, so the
// tool call can finish gracefully.
func (e *Elicitor) Elicit(ctx context.Context, sessionID, source string, req ElicitationRequest) (ElicitationResult, error) {
	if sessionID == "" {
		return ElicitationResult{Action: ElicitDecline}, nil
	}

	var schema *jsonschema.Schema
	if len(req.RequestedSchema) > 0 {
		compiled, err := jsonschema.CompileString("elicitation.json", string(req.RequestedSchema))
		if err != nil {
			return ElicitationResult{}, fmt.Errorf("elicitation schema: %w", err)
		}
		schema = compiled
	}

	w := e.in.NewWaiter(event.BySession(sessionID))
	defer w.Close()

	e.setState(sessionID, StateAwaitingReply)
	e.out.Publish(types.OutputEvent{
		SessionID: sessionID,
		Source:    source,
		Kind:      types.OutputElicitation,
		Content: map[string]any{
			"message": req.Message,
			"schema":  req.RequestedSchema,
		},
	})

	log := logging.Session("elicitation", sessionID)
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.setState(sessionID, StateCancelled)
			return ElicitationResult{Action: ElicitCancel}, nil

		case <-timer.C:
			e.setState(sessionID, StateTimedOut)
			log.Info().Msg("elicitation timed out")
			e.out.Publish(types.NewErrorOutput(sessionID, source, "no reply received in time, cancelling"))
			return ElicitationResult{Action: ElicitCancel}, nil

		case ev := <-w.C:
			// Claim before parsing; losing the race means another
			// consumer owns this event.
			if !e.in.Claim(ev.ID) {
				continue
			}

			text := strings.TrimSpace(ev.Text())
			if _, isCancel := cancelWords[strings.ToLower(text)]; isCancel {
				e.setState(sessionID, StateCancelled)
				log.Info().Msg("elicitation cancelled by user")
				return ElicitationResult{Action: ElicitCancel}, nil
			}

			content, err := e.parseReply(ctx, text, req.RequestedSchema, schema)
			if err != nil {
				log.Debug().Err(err).Msg("unusable elicitation reply")
				e.out.Publish(types.NewErrorOutput(sessionID, source,
					fmt.Sprintf("could not understand the reply (%v), please try again or say cancel", err)))
				continue
			}

			e.setState(sessionID, StateResolved)
			return ElicitationResult{Action: ElicitAccept, Content: content}, nil
		}
	}
}

// parseReply tries strict JSON first, then coercion.
func (e *Elicitor) parseReply(ctx context.Context, text string, rawSchema json.RawMessage, schema *jsonschema.Schema) (json.RawMessage, error) {
	if content, err := validateReply([]byte(text), schema); err == nil {
		return content, nil
	} else if e.coerce == nil {
		return nil, err
	}

	coerced, err := e.coerce(ctx, text, rawSchema)
	if err != nil {
		return nil, err
	}
	return validateReply(coerced, schema)
}

// validateReply checks that data is JSON and satisfies the schema.
func validateReply(data []byte, schema *jsonschema.Schema) (json.RawMessage, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("not valid JSON")
	}
	if schema != nil {
		if err := schema.Validate(value); err != nil {
			return nil, fmt.Errorf("does not match requested schema")
		}
	}
	return json.RawMessage(data), nil
}
