package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/pkg/types"
)

const tempSchema = `{"type":"object","properties":{"temperature":{"type":"number"}},"required":["temperature"]}`

type elicitEnv struct {
	in   *event.InputBus
	out  *event.OutputBus
	outs chan types.OutputEvent
}

func newElicitEnv(t *testing.T) *elicitEnv {
	t.Helper()
	env := &elicitEnv{
		in:   event.NewInputBus(),
		out:  event.NewOutputBus(),
		outs: make(chan types.OutputEvent, 16),
	}
	env.out.Subscribe(func(ev types.OutputEvent) {
		env.outs <- ev
	})
	t.Cleanup(func() {
		env.in.Close()
		env.out.Close()
	})
	return env
}

// waitFor blocks until an output of the given kind arrives.
func (env *elicitEnv) waitFor(t *testing.T, kind types.OutputKind) types.OutputEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-env.outs:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s output within deadline", kind)
		}
	}
}

// reply publishes a user reply on the session and returns the stamped event.
func (env *elicitEnv) reply(sessionID, text string) types.InputEvent {
	content, _ := json.Marshal(text)
	return env.in.Publish(types.InputEvent{
		Source:    "tcp",
		SessionID: sessionID,
		Content:   content,
	})
}

type elicitOutcome struct {
	result ElicitationResult
	err    error
}

func startElicit(e *Elicitor, sessionID string, req ElicitationRequest) chan elicitOutcome {
	done := make(chan elicitOutcome, 1)
	go func() {
		result, err := e.Elicit(context.Background(), sessionID, "tcp", req)
		done <- elicitOutcome{result, err}
	}()
	return done
}

func TestElicitResolvesValidReply(t *testing.T) {
	env := newElicitEnv(t)
	e := NewElicitor(env.in, env.out, nil, time.Minute)

	done := startElicit(e, "tcp:1", ElicitationRequest{
		Message:         "what temperature?",
		RequestedSchema: json.RawMessage(tempSchema),
	})

	prompt := env.waitFor(t, types.OutputElicitation)
	if prompt.SessionID != "tcp:1" {
		t.Errorf("prompt session = %q", prompt.SessionID)
	}
	if e.State("tcp:1") != StateAwaitingReply {
		t.Errorf("state = %s, want awaiting_reply", e.State("tcp:1"))
	}

	ev := env.reply("tcp:1", `{"temperature": 5}`)

	outcome := <-done
	if outcome.err != nil {
		t.Fatalf("Elicit: %v", outcome.err)
	}
	if outcome.result.Action != ElicitAccept {
		t.Fatalf("action = %q, want accept", outcome.result.Action)
	}
	var parsed struct {
		Temperature float64 `json:"temperature"`
	}
	if err := json.Unmarshal(outcome.result.Content, &parsed); err != nil || parsed.Temperature != 5 {
		t.Errorf("content = %s", outcome.result.Content)
	}
	if !env.in.Claimed(ev.ID) {
		t.Error("reply event was not claimed")
	}
	if e.State("tcp:1") != StateResolved {
		t.Errorf("state = %s, want resolved", e.State("tcp:1"))
	}
}

func TestElicitCancelWord(t *testing.T) {
	env := newElicitEnv(t)
	e := NewElicitor(env.in, env.out, nil, time.Minute)

	done := startElicit(e, "tcp:1", ElicitationRequest{Message: "what temperature?"})
	env.waitFor(t, types.OutputElicitation)

	ev := env.reply("tcp:1", "never mind")

	outcome := <-done
	if outcome.err != nil {
		t.Fatalf("Elicit: %v", outcome.err)
	}
	if outcome.result.Action != ElicitCancel {
		t.Errorf("action = %q, want cancel", outcome.result.Action)
	}
	if !env.in.Claimed(ev.ID) {
		t.Error("cancel reply was not claimed")
	}
	if e.State("tcp:1") != StateCancelled {
		t.Errorf("state = %s, want cancelled", e.State("tcp:1"))
	}
}

func TestElicitInvalidReplyKeepsWaiting(t *testing.T) {
	env := newElicitEnv(t)
	e := NewElicitor(env.in, env.out, nil, time.Minute)

	done := startElicit(e, "tcp:1", ElicitationRequest{
		Message:         "what temperature?",
		RequestedSchema: json.RawMessage(tempSchema),
	})
	env.waitFor(t, types.OutputElicitation)

	bad := env.reply("tcp:1", "way too cold out")
	env.waitFor(t, types.OutputError)
	if !env.in.Claimed(bad.ID) {
		t.Error("invalid reply should still be claimed")
	}

	env.reply("tcp:1", `{"temperature": -12}`)
	outcome := <-done
	if outcome.err != nil {
		t.Fatalf("Elicit: %v", outcome.err)
	}
	if outcome.result.Action != ElicitAccept {
		t.Errorf("action = %q, want accept", outcome.result.Action)
	}
}

func TestElicitIgnoresOtherSessions(t *testing.T) {
	env := newElicitEnv(t)
	e := NewElicitor(env.in, env.out, nil, time.Minute)

	done := startElicit(e, "tcp:1", ElicitationRequest{Message: "what temperature?"})
	env.waitFor(t, types.OutputElicitation)

	other := env.reply("tcp:2", `{"temperature": 99}`)
	env.reply("tcp:1", `{"temperature": 5}`)

	outcome := <-done
	if outcome.err != nil {
		t.Fatalf("Elicit: %v", outcome.err)
	}
	if env.in.Claimed(other.ID) {
		t.Error("event from another session must not be claimed")
	}
}

func TestElicitCoercesFreeFormReply(t *testing.T) {
	env := newElicitEnv(t)
	coerce := func(ctx context.Context, reply string, schema json.RawMessage) (json.RawMessage, error) {
		if reply != "about five degrees" {
			t.Errorf("coercer got %q", reply)
		}
		return json.RawMessage(`{"temperature": 5}`), nil
	}
	e := NewElicitor(env.in, env.out, coerce, time.Minute)

	done := startElicit(e, "tcp:1", ElicitationRequest{
		Message:         "what temperature?",
		RequestedSchema: json.RawMessage(tempSchema),
	})
	env.waitFor(t, types.OutputElicitation)

	env.reply("tcp:1", "about five degrees")

	outcome := <-done
	if outcome.err != nil {
		t.Fatalf("Elicit: %v", outcome.err)
	}
	if outcome.result.Action != ElicitAccept {
		t.Fatalf("action = %q, want accept", outcome.result.Action)
	}
	if string(outcome.result.Content) != `{"temperature": 5}` {
		t.Errorf("content = %s", outcome.result.Content)
	}
}

func TestElicitTimesOut(t *testing.T) {
	env := newElicitEnv(t)
	e := NewElicitor(env.in, env.out, nil, 50*time.Millisecond)

	done := startElicit(e, "tcp:1", ElicitationRequest{Message: "what temperature?"})
	env.waitFor(t, types.OutputElicitation)

	outcome := <-done
	if outcome.err != nil {
		t.Fatalf("Elicit: %v", outcome.err)
	}
	if outcome.result.Action != ElicitCancel {
		t.Errorf("action = %q, want cancel", outcome.result.Action)
	}
	if e.State("tcp:1") != StateTimedOut {
		t.Errorf("state = %s, want timed_out", e.State("tcp:1"))
	}
	env.waitFor(t, types.OutputError)
}

func TestElicitDeclinesWithoutSession(t *testing.T) {
	env := newElicitEnv(t)
	e := NewElicitor(env.in, env.out, nil, time.Minute)

	result, err := e.Elicit(context.Background(), "", "", ElicitationRequest{Message: "anyone there?"})
	if err != nil {
		t.Fatalf("Elicit: %v", err)
	}
	if result.Action != ElicitDecline {
		t.Errorf("action = %q, want decline", result.Action)
	}
}

func TestHandlerRepublishesProgress(t *testing.T) {
	env := newElicitEnv(t)
	e := NewElicitor(env.in, env.out, nil, time.Minute)
	handler := e.HandlerFor("tcp:1", "tcp")

	if _, err := handler(context.Background(), "notifications/progress", json.RawMessage(`{"progress":0.5}`)); err != nil {
		t.Fatalf("handler: %v", err)
	}

	ev := env.waitFor(t, types.OutputProgress)
	if ev.SessionID != "tcp:1" {
		t.Errorf("progress session = %q", ev.SessionID)
	}
}

func TestHandlerUnknownMethod(t *testing.T) {
	env := newElicitEnv(t)
	e := NewElicitor(env.in, env.out, nil, time.Minute)
	handler := e.HandlerFor("tcp:1", "tcp")

	if _, err := handler(context.Background(), "sampling/create", nil); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestElicitSessionsRunIndependently(t *testing.T) {
	env := newElicitEnv(t)
	e := NewElicitor(env.in, env.out, nil, time.Minute)

	// Session one waits on its prompt; session two starts, resolves, and
	// finishes while one is still pending.
	doneOne := startElicit(e, "tcp:1", ElicitationRequest{
		Message:         "what temperature?",
		RequestedSchema: json.RawMessage(tempSchema),
	})
	env.waitFor(t, types.OutputElicitation)

	doneTwo := startElicit(e, "tcp:2", ElicitationRequest{
		Message:         "what temperature?",
		RequestedSchema: json.RawMessage(tempSchema),
	})
	env.waitFor(t, types.OutputElicitation)

	env.reply("tcp:2", `{"temperature": 9}`)
	outcome := <-doneTwo
	if outcome.err != nil {
		t.Fatalf("Elicit: %v", outcome.err)
	}
	if outcome.result.Action != ElicitAccept {
		t.Fatalf("session two action = %q, want accept", outcome.result.Action)
	}
	if got := e.State("tcp:1"); got != StateAwaitingReply {
		t.Errorf("session one state = %s, want awaiting_reply", got)
	}

	env.reply("tcp:1", `{"temperature": 5}`)
	outcome = <-doneOne
	if outcome.err != nil {
		t.Fatalf("Elicit: %v", outcome.err)
	}
	if outcome.result.Action != ElicitAccept {
		t.Errorf("session one action = %q, want accept", outcome.result.Action)
	}
}

func TestElicitStopsClaimingAfterCancel(t *testing.T) {
	env := newElicitEnv(t)
	e := NewElicitor(env.in, env.out, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan elicitOutcome, 1)
	go func() {
		result, err := e.Elicit(ctx, "tcp:1", "tcp", ElicitationRequest{Message: "what temperature?"})
		done <- elicitOutcome{result, err}
	}()
	env.waitFor(t, types.OutputElicitation)

	cancel()
	outcome := <-done
	if outcome.err != nil {
		t.Fatalf("Elicit: %v", outcome.err)
	}
	if outcome.result.Action != ElicitCancel {
		t.Errorf("action = %q, want cancel", outcome.result.Action)
	}

	// A later message on the session belongs to the actor, not to the
	// abandoned exchange.
	ev := env.reply("tcp:1", "hello again")
	time.Sleep(20 * time.Millisecond)
	if env.in.Claimed(ev.ID) {
		t.Error("reply claimed after the exchange was cancelled")
	}
}
