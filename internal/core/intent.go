package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/provider"
	"github.com/agentd-ai/agentd/pkg/types"
)

// IntentDecision is the outcome of the respond-or-ignore gate.
type IntentDecision int

const (
	// IntentAct proceeds to planning.
	IntentAct IntentDecision = iota
	// IntentIgnore drops the event without a response.
	IntentIgnore
)

// IntentGate decides whether an input deserves a response at all, before
// any planning happens.
type IntentGate interface {
	Evaluate(ctx context.Context, sctx types.SessionContext, text string) IntentDecision
}

// AlwaysAct responds to everything. Used when the gate is disabled.
type AlwaysAct struct{}

func (AlwaysAct) Evaluate(ctx context.Context, sctx types.SessionContext, text string) IntentDecision {
	return IntentAct
}

// Completer runs one completion. provider.Provider satisfies it.
type Completer interface {
	Complete(ctx context.Context, req *provider.CompletionRequest) (string, error)
}

// LLMIntentGate asks a model whether to respond. Any failure falls back to
// acting, so a broken model never silences the session.
type LLMIntentGate struct {
	completer Completer
	persona   types.Persona
}

func NewLLMIntentGate(completer Completer) *LLMIntentGate {
	return &LLMIntentGate{completer: completer}
}

// SetPersona prefixes the gate's prompt with the agent's identity.
func (g *LLMIntentGate) SetPersona(p types.Persona) {
	g.persona = p
}

func (g *LLMIntentGate) system() string {
	if g.persona.Name == "" {
		return intentSystem
	}
	return fmt.Sprintf("You are named %q with a %s style.\n\n%s", g.persona.Name, g.persona.Style, intentSystem)
}

const intentSystem = `You are receiving a message. Your task is to decide whether to RESPOND or IGNORE.

Guidelines:
1. If the message is a direct question, a command, or explicitly addressed to you, RESPOND.
2. If the message is ambiguous but likely requires an answer (e.g., 'How is the weather?'), RESPOND.
3. If the message is just noise, irrelevant, or clearly addressed to someone else, IGNORE.

Format your answer exactly like this:
Reason: [Short explanation of why]
Decision: [RESPOND or IGNORE]`

func (g *LLMIntentGate) Evaluate(ctx context.Context, sctx types.SessionContext, text string) IntentDecision {
	out, err := g.completer.Complete(ctx, &provider.CompletionRequest{
		System:      g.system(),
		Prompt:      "Message: " + text,
		Temperature: 0.1,
	})
	if err != nil {
		logging.Session("intent", sctx.SessionID).Warn().Err(err).Msg("intent gate failed, acting anyway")
		return IntentAct
	}

	upper := strings.ToUpper(out)
	if strings.Contains(upper, "DECISION: RESPOND") || strings.Contains(upper, "DECISION:RESPOND") {
		return IntentAct
	}
	return IntentIgnore
}
