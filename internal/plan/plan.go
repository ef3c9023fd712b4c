// Package plan decides what a session should do with an input event. The
// completion-backed engine asks a model to pick a minimal ordered set of
// steps; the static engine returns a fixed plan and exists for bootstrap
// and tests.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/mcp"
	"github.com/agentd-ai/agentd/internal/provider"
	"github.com/agentd-ai/agentd/pkg/types"
)

// DecisionError reports a failed decision cycle: the model could not be
// reached, returned something that is not a plan, or named a step that does
// not exist. The session degrades to a canned reply naming the failure
// instead of dying.
type DecisionError struct {
	Reason string
	Err    error
}

func (e *DecisionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decision: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decision: %s", e.Reason)
}

func (e *DecisionError) Unwrap() error { return e.Err }

// Engine produces a workflow plan for one input event.
type Engine interface {
	Plan(ctx context.Context, sctx types.SessionContext, ev types.InputEvent) (types.WorkflowPlan, error)
}

// ToolLister exposes the available remote tools. *mcp.Client satisfies it.
type ToolLister interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// Completer runs one completion. provider.Provider satisfies it.
type Completer interface {
	Complete(ctx context.Context, req *provider.CompletionRequest) (string, error)
}

// contextSteps are the built-in steps the planner may pick alongside tools.
var contextSteps = map[string]types.StepKind{
	"memory":       types.StepMemory,
	"profile":      types.StepProfile,
	"relationship": types.StepRelationship,
	"respond":      types.StepRespond,
}

// StaticEngine always returns the same plan.
type StaticEngine struct {
	Steps []types.StepSpec
}

// NewStaticEngine builds a static engine. With no steps it plans the three
// context-refresh steps.
func NewStaticEngine(steps ...types.StepSpec) *StaticEngine {
	if len(steps) == 0 {
		steps = []types.StepSpec{
			{Kind: types.StepMemory},
			{Kind: types.StepProfile},
			{Kind: types.StepRelationship},
		}
	}
	return &StaticEngine{Steps: steps}
}

func (e *StaticEngine) Plan(ctx context.Context, sctx types.SessionContext, ev types.InputEvent) (types.WorkflowPlan, error) {
	return types.WorkflowPlan{Steps: e.Steps}, nil
}

// LLMEngine plans with a completion model over the live tool catalog.
type LLMEngine struct {
	completer Completer
	tools     ToolLister
	persona   types.Persona
}

// NewLLMEngine builds a completion-backed engine. tools may be nil when no
// tool server is configured.
func NewLLMEngine(completer Completer, tools ToolLister) *LLMEngine {
	return &LLMEngine{completer: completer, tools: tools}
}

// SetPersona prefixes the planner prompt with the agent's identity.
func (e *LLMEngine) SetPersona(p types.Persona) {
	e.persona = p
}

// Plan asks the model for a pure JSON array of step names and maps them to
// step specs. Malformed output or unknown names fail with DecisionError;
// there is no internal retry.
func (e *LLMEngine) Plan(ctx context.Context, sctx types.SessionContext, ev types.InputEvent) (types.WorkflowPlan, error) {
	log := logging.Session("plan", sctx.SessionID)

	var tools []mcp.Tool
	if e.tools != nil {
		listed, err := e.tools.ListTools(ctx)
		if err != nil {
			// Plan without tools rather than failing the cycle.
			log.Warn().Err(err).Msg("tool listing failed, planning without tools")
		} else {
			tools = listed
		}
	}

	out, err := e.completer.Complete(ctx, &provider.CompletionRequest{
		System:      plannerSystem(e.persona, ev.Source, tools),
		Prompt:      fmt.Sprintf("Input: %s\nReturn steps:", ev.Text()),
		Temperature: 0.2,
	})
	if err != nil {
		return types.WorkflowPlan{}, &DecisionError{Reason: "completion failed", Err: err}
	}

	steps, err := parseSteps(out, tools)
	if err != nil {
		return types.WorkflowPlan{}, err
	}

	log.Debug().Int("steps", len(steps)).Msg("plan decided")
	return types.WorkflowPlan{Steps: steps}, nil
}

func plannerSystem(persona types.Persona, source string, tools []mcp.Tool) string {
	descriptions := make([]string, 0, len(tools))
	for _, t := range tools {
		descriptions = append(descriptions, fmt.Sprintf("%s: %s", t.Name, t.Description))
	}

	var b strings.Builder
	if persona.Name != "" {
		fmt.Fprintf(&b, "You are named %q with a %s style.\n", persona.Name, persona.Style)
	}
	fmt.Fprintf(&b, "Input Source: %s\n", source)
	b.WriteString("You are a smart workflow planner. Your goal is to select the minimal and optimal set of steps to fulfill the user's request.\n")
	b.WriteString(`Available Steps: ["Memory","Profile","Relationship","Respond"].` + "\n")
	fmt.Fprintf(&b, "Available Tools: [%s].\n", strings.Join(descriptions, ", "))
	b.WriteString(`
Tool Categories:
- [Conversational]: For natural language interaction, chat, Q&A, and roleplay.
- [Utility]: For specific calculations, data processing, testing, or system operations.
- [Memory]: For storing and recalling long-term information.
- [Profile]: For managing user profiles and preferences.

Rules:
1. Analyze the user's intent and match it to the appropriate Tool Category.
2. If the user's input is casual conversation (greeting, small talk, general questions), prioritize [Conversational] steps.
3. Use [Utility] tools ONLY when the user explicitly requests that specific functionality (e.g., math, weather).
4. Use [Memory] or [Profile] steps if the request involves remembering facts or accessing user data.
5. Choose ONLY the necessary steps. Avoid redundant steps.
6. Return a pure JSON array of step names. Each element is either a string or an object {"name": ..., "args": {...}}. No explanation.`)
	return b.String()
}

// rawStep is one element of the model's reply, either a bare name or an
// object carrying arguments.
type rawStep struct {
	Name string
	Args json.RawMessage
}

func (r *rawStep) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.Name = name
		return nil
	}
	var obj struct {
		Name string          `json:"name"`
		Tool string          `json:"tool"`
		Args json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.Name = obj.Name
	if r.Name == "" {
		r.Name = obj.Tool
	}
	if r.Name == "" {
		return fmt.Errorf("step object without a name")
	}
	r.Args = obj.Args
	return nil
}

// parseSteps extracts the JSON array from the model output and validates
// every name against the built-in steps and the tool catalog.
func parseSteps(out string, tools []mcp.Tool) ([]types.StepSpec, error) {
	s := strings.TrimSpace(out)
	if i, j := strings.Index(s, "["), strings.LastIndex(s, "]"); i >= 0 && j > i {
		s = s[i : j+1]
	}

	var raw []rawStep
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, &DecisionError{Reason: fmt.Sprintf("malformed plan %q", out), Err: err}
	}

	byName := make(map[string]string, len(tools))
	for _, t := range tools {
		byName[strings.ToLower(t.Name)] = t.Name
	}

	steps := make([]types.StepSpec, 0, len(raw))
	for _, r := range raw {
		lower := strings.ToLower(r.Name)
		if kind, ok := contextSteps[lower]; ok {
			steps = append(steps, types.StepSpec{Kind: kind})
			continue
		}
		canonical, ok := byName[lower]
		if !ok {
			return nil, &DecisionError{Reason: fmt.Sprintf("unknown step %q", r.Name)}
		}
		steps = append(steps, types.ToolStep(canonical, r.Args))
	}
	return steps, nil
}
