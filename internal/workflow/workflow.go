// Package workflow executes decided plans step by step. The executor owns
// the single dispatch over step kinds; parameter resolution lives in
// resolver.go.
package workflow

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

// StepError reports a failed step. It aborts the remaining steps of the
// current plan; the session itself keeps running.
type StepError struct {
	Kind types.StepKind
	Name string
	Err  error
}

func (e *StepError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("step %s/%s: %v", e.Kind, e.Name, e.Err)
	}
	return fmt.Sprintf("step %s: %v", e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ToolClient is the slice of the tool protocol client the executor needs.
// *mcp.Client satisfies it.
type ToolClient interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (string, error)
	ToolSchema(ctx context.Context, name string) (json.RawMessage, error)
	RequiredFields(ctx context.Context, name string) ([]string, error)
}

// Completer runs one completion. provider.Provider satisfies it.
type Completer interface {
	Complete(ctx context.Context, req *provider.CompletionRequest) (string, error)
}

// ClientSource hands out the tool client scoped to a session. Server
// requests on that client (elicitation, progress) are answered on behalf
// of that session, so sessions run tool calls independently.
type ClientSource interface {
	ClientFor(sessionID, source string) ToolClient
}

// ClientSourceFunc adapts a function to ClientSource.
type ClientSourceFunc func(sessionID, source string) ToolClient

func (f ClientSourceFunc) ClientFor(sessionID, source string) ToolClient {
	return f(sessionID, source)
}

// Executor runs workflow plans.
type Executor struct {
	tools     ClientSource
	completer Completer
	resolver  *Resolver
	persona   types.Persona
}

// NewExecutor builds an executor. tools may be nil when no tool server is
// configured; tool steps then fail with a StepError.
func NewExecutor(tools ClientSource, completer Completer, resolver *Resolver) *Executor {
	return &Executor{tools: tools, completer: completer, resolver: resolver}
}

// SetPersona shapes direct responses with the agent's identity.
func (x *Executor) SetPersona(p types.Persona) {
	x.persona = p
}

// Run executes the plan in order. The first StepError aborts the remaining
// steps; outputs produced so far are returned alongside the error.
func (x *Executor) Run(ctx context.Context, sctx types.SessionContext, plan types.WorkflowPlan, ev types.InputEvent) ([]types.OutputEvent, error) {
	log := logging.Session("workflow", sctx.SessionID)

	var outputs []types.OutputEvent
	for i, step := range plan.Steps {
		out, err := x.Execute(ctx, sctx, step, ev)
		if err != nil {
			log.Warn().Err(err).Int("step", i).Msg("step failed, aborting plan")
			return outputs, err
		}
		if out != nil {
			outputs = append(outputs, *out)
		}
	}
	return outputs, nil
}

// Execute runs one step. This is the only dispatch over StepKind.
func (x *Executor) Execute(ctx context.Context, sctx types.SessionContext, step types.StepSpec, ev types.InputEvent) (*types.OutputEvent, error) {
	switch step.Kind {
	case types.StepMemory:
		if sctx.Memory != nil {
			sctx.Memory["input_text"] = ev.Text()
		}
		return nil, nil

	case types.StepProfile:
		if sctx.Memory != nil {
			sctx.Memory["profile_touched"] = "true"
		}
		return nil, nil

	case types.StepRelationship:
		if sctx.Memory != nil {
			sctx.Memory["relationships_touched"] = "true"
		}
		out := types.NewTextOutput(sctx.SessionID, sctx.Source, x.contextSummary(sctx, ev))
		return &out, nil

	case types.StepRespond:
		text := step.Text
		if text == "" {
			reply, err := x.directResponse(ctx, sctx, ev)
			if err != nil {
				return nil, &StepError{Kind: step.Kind, Err: err}
			}
			text = reply
		}
		out := types.NewTextOutput(sctx.SessionID, sctx.Source, text)
		return &out, nil

	case types.StepTool:
		return x.executeTool(ctx, sctx, step, ev)

	default:
		return nil, &StepError{Kind: step.Kind, Name: step.Name, Err: fmt.Errorf("unknown step kind")}
	}
}

func (x *Executor) executeTool(ctx context.Context, sctx types.SessionContext, step types.StepSpec, ev types.InputEvent) (*types.OutputEvent, error) {
	if x.tools == nil {
		return nil, &StepError{Kind: step.Kind, Name: step.Name, Err: fmt.Errorf("no tool server configured")}
	}
	client := x.tools.ClientFor(sctx.SessionID, sctx.Source)
	if client == nil {
		return nil, &StepError{Kind: step.Kind, Name: step.Name, Err: fmt.Errorf("no tool server configured")}
	}

	args, err := x.resolver.Resolve(ctx, step.Name, step.Args, sctx, ev.Text())
	if err != nil {
		return nil, &StepError{Kind: step.Kind, Name: step.Name, Err: err}
	}
	args = withSessionID(args, sctx.SessionID)

	result, err := client.CallTool(ctx, step.Name, args)
	if err != nil {
		return nil, &StepError{Kind: step.Kind, Name: step.Name, Err: err}
	}

	if sctx.Memory != nil {
		sctx.Memory["last_tool_result"] = result
	}

	out := types.NewTextOutput(sctx.SessionID, sctx.Source, result)
	return &out, nil
}

// directResponse answers conversationally without tools.
func (x *Executor) directResponse(ctx context.Context, sctx types.SessionContext, ev types.InputEvent) (string, error) {
	if x.completer == nil {
		return "", fmt.Errorf("no completion model configured")
	}
	prompt := ev.Text()
	if last := sctx.MemoryValue("last_tool_result"); last != "" {
		prompt = fmt.Sprintf("%s\nPrevious result: %s", prompt, last)
	}
	system := "You are a helpful assistant. Answer the user's message directly and concisely."
	if x.persona.Name != "" {
		system = fmt.Sprintf("You are %q, a helpful assistant with a %s style. Answer the user's message directly and concisely.",
			x.persona.Name, x.persona.Style)
	}
	return x.completer.Complete(ctx, &provider.CompletionRequest{
		System:      system,
		Prompt:      prompt,
		Temperature: 0.7,
	})
}

// contextSummary is the text emitted by the relationship step.
func (x *Executor) contextSummary(sctx types.SessionContext, ev types.InputEvent) string {
	if last := sctx.MemoryValue("last_tool_result"); last != "" {
		return last
	}
	return fmt.Sprintf("noted: %s", ev.Text())
}

// withSessionID injects the session id into object args when absent, so
// stateful tools can correlate calls.
func withSessionID(args json.RawMessage, sessionID string) json.RawMessage {
	if sessionID == "" || len(args) == 0 {
		return args
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(args, &obj); err != nil {
		return args
	}
	if _, ok := obj["session_id"]; ok {
		return args
	}
	obj["session_id"] = json.RawMessage(fmt.Sprintf("%q", sessionID))
	merged, err := json.Marshal(obj)
	if err != nil {
		return args
	}
	return merged
}

// extractObject finds the outermost JSON object in model output.
func extractObject(s string) string {
	s = strings.TrimSpace(s)
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		return s[i : j+1]
	}
	return s
}
