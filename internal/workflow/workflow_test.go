package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd-ai/agentd/internal/mcp"
	"github.com/agentd-ai/agentd/pkg/types"
)

type toolCall struct {
	name string
	args json.RawMessage
}

type fakeTools struct {
	result  string
	callErr error
	calls   []toolCall
}

func newFakeTools() *fakeTools {
	return &fakeTools{result: "18C and sunny"}
}

func (f *fakeTools) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return []mcp.Tool{{
		Name:        "get_weather",
		Description: "current weather for a city",
		InputSchema: json.RawMessage(weatherSchema),
	}}, nil
}

func (f *fakeTools) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	f.calls = append(f.calls, toolCall{name: name, args: args})
	if f.callErr != nil {
		return "", f.callErr
	}
	return f.result, nil
}

func (f *fakeTools) ToolSchema(ctx context.Context, name string) (json.RawMessage, error) {
	if name != "get_weather" {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return json.RawMessage(weatherSchema), nil
}

func (f *fakeTools) RequiredFields(ctx context.Context, name string) ([]string, error) {
	if name != "get_weather" {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return []string{"city", "date"}, nil
}

// fixedSource serves the same client to every session.
func fixedSource(tools ToolClient) ClientSource {
	return ClientSourceFunc(func(sessionID, source string) ToolClient { return tools })
}

// recordingSource notes which session each client was requested for.
type recordingSource struct {
	tools  ToolClient
	asked  []string
	source string
}

func (r *recordingSource) ClientFor(sessionID, source string) ToolClient {
	r.asked = append(r.asked, sessionID)
	r.source = source
	return r.tools
}

func newSessionContext() types.SessionContext {
	return types.SessionContext{
		SessionID: "tcp:1",
		Source:    "tcp",
		Memory:    map[string]string{},
	}
}

func inputEvent(text string) types.InputEvent {
	content, _ := json.Marshal(text)
	return types.InputEvent{ID: "01TEST", Source: "tcp", SessionID: "tcp:1", Content: content}
}

func TestRunExecutesToolStep(t *testing.T) {
	tools := newFakeTools()
	x := NewExecutor(fixedSource(tools), nil, NewResolver(tools, nil))

	sctx := newSessionContext()
	plan := types.WorkflowPlan{Steps: []types.StepSpec{
		types.ToolStep("get_weather", json.RawMessage(`{"city": "Paris", "date": "today"}`)),
	}}

	outputs, err := x.Run(context.Background(), sctx, plan, inputEvent("weather in Paris today"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "18C and sunny", outputs[0].Content)
	assert.Equal(t, types.OutputText, outputs[0].Kind)
	assert.Equal(t, "tcp:1", outputs[0].SessionID)

	require.Len(t, tools.calls, 1)
	args := decodeArgs(t, tools.calls[0].args)
	assert.Equal(t, "tcp:1", args["session_id"], "session id should be injected")
	assert.Equal(t, "18C and sunny", sctx.Memory["last_tool_result"])
}

func TestRunAbortsRemainingStepsOnFailure(t *testing.T) {
	tools := newFakeTools()
	tools.callErr = errors.New("boom")
	x := NewExecutor(fixedSource(tools), nil, NewResolver(tools, nil))

	plan := types.WorkflowPlan{Steps: []types.StepSpec{
		types.ToolStep("get_weather", json.RawMessage(`{"city": "Paris"}`)),
		types.RespondStep("you should never see this"),
	}}

	outputs, err := x.Run(context.Background(), newSessionContext(), plan, inputEvent("weather"))
	var serr *StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, types.StepTool, serr.Kind)
	assert.Equal(t, "get_weather", serr.Name)
	assert.Empty(t, outputs, "no output from the failed step or the aborted one")
	assert.Len(t, tools.calls, 1)
}

func TestRespondStepWithText(t *testing.T) {
	x := NewExecutor(nil, nil, NewResolver(nil, nil))

	out, err := x.Execute(context.Background(), newSessionContext(), types.RespondStep("pong"), inputEvent("ping"))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "pong", out.Content)
}

func TestRespondStepUsesCompletion(t *testing.T) {
	completer := &stubCompleter{out: "hello there"}
	x := NewExecutor(nil, completer, NewResolver(nil, completer))

	out, err := x.Execute(context.Background(), newSessionContext(), types.StepSpec{Kind: types.StepRespond}, inputEvent("hi"))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "hello there", out.Content)
	assert.Contains(t, completer.lastReq.Prompt, "hi")
}

func TestRespondStepCompletionFailure(t *testing.T) {
	completer := &stubCompleter{err: errors.New("model down")}
	x := NewExecutor(nil, completer, NewResolver(nil, completer))

	_, err := x.Execute(context.Background(), newSessionContext(), types.StepSpec{Kind: types.StepRespond}, inputEvent("hi"))
	var serr *StepError
	require.ErrorAs(t, err, &serr)
}

func TestContextSteps(t *testing.T) {
	x := NewExecutor(nil, nil, NewResolver(nil, nil))
	sctx := newSessionContext()
	ev := inputEvent("remember my name is Ada")

	out, err := x.Execute(context.Background(), sctx, types.StepSpec{Kind: types.StepMemory}, ev)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, "remember my name is Ada", sctx.Memory["input_text"])

	out, err = x.Execute(context.Background(), sctx, types.StepSpec{Kind: types.StepProfile}, ev)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, "true", sctx.Memory["profile_touched"])

	out, err = x.Execute(context.Background(), sctx, types.StepSpec{Kind: types.StepRelationship}, ev)
	require.NoError(t, err)
	require.NotNil(t, out, "relationship step emits a summary")
}

func TestToolStepUsesSessionScopedClient(t *testing.T) {
	tools := newFakeTools()
	source := &recordingSource{tools: tools}
	x := NewExecutor(source, nil, NewResolver(tools, nil))

	_, err := x.Execute(context.Background(), newSessionContext(),
		types.ToolStep("get_weather", json.RawMessage(`{"city": "Paris"}`)), inputEvent("weather"))
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp:1"}, source.asked)
	assert.Equal(t, "tcp", source.source)
}

func TestToolStepWithoutToolServer(t *testing.T) {
	x := NewExecutor(nil, nil, NewResolver(nil, nil))

	_, err := x.Execute(context.Background(), newSessionContext(),
		types.ToolStep("get_weather", nil), inputEvent("weather"))
	var serr *StepError
	require.ErrorAs(t, err, &serr)
}

func TestDirectResponseCarriesPersona(t *testing.T) {
	completer := &stubCompleter{out: "certainly"}
	x := NewExecutor(nil, completer, NewResolver(nil, completer))
	x.SetPersona(types.Persona{Name: "Marvin", Style: types.StyleFormal})

	_, err := x.Execute(context.Background(), newSessionContext(), types.StepSpec{Kind: types.StepRespond}, inputEvent("hi"))
	require.NoError(t, err)
	assert.Contains(t, completer.lastReq.System, `"Marvin"`)
	assert.Contains(t, completer.lastReq.System, "formal")
}
