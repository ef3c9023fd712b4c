package plan

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd-ai/agentd/internal/mcp"
	"github.com/agentd-ai/agentd/internal/provider"
	"github.com/agentd-ai/agentd/pkg/types"
)

type stubCompleter struct {
	out     string
	err     error
	lastReq *provider.CompletionRequest
}

func (s *stubCompleter) Complete(ctx context.Context, req *provider.CompletionRequest) (string, error) {
	s.lastReq = req
	return s.out, s.err
}

type stubTools struct {
	tools []mcp.Tool
	err   error
}

func (s *stubTools) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return s.tools, s.err
}

var weatherTools = []mcp.Tool{
	{Name: "get_weather", Description: "current weather for a city"},
	{Name: "echo", Description: "echoes its input"},
}

func testEvent(text string) types.InputEvent {
	content, _ := json.Marshal(text)
	return types.InputEvent{ID: "01TEST", Source: "console", Content: content}
}

func TestLLMEnginePlansToolSteps(t *testing.T) {
	completer := &stubCompleter{out: `["Memory", {"name": "get_weather", "args": {"city": "Paris"}}]`}
	engine := NewLLMEngine(completer, &stubTools{tools: weatherTools})

	plan, err := engine.Plan(context.Background(), types.SessionContext{SessionID: "console"}, testEvent("weather in Paris?"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)

	assert.Equal(t, types.StepMemory, plan.Steps[0].Kind)
	assert.Equal(t, types.StepTool, plan.Steps[1].Kind)
	assert.Equal(t, "get_weather", plan.Steps[1].Name)
	assert.JSONEq(t, `{"city": "Paris"}`, string(plan.Steps[1].Args))

	require.NotNil(t, completer.lastReq)
	assert.Contains(t, completer.lastReq.System, "get_weather")
	assert.Contains(t, completer.lastReq.Prompt, "weather in Paris?")
}

func TestLLMEngineExtractsArrayFromChatter(t *testing.T) {
	completer := &stubCompleter{out: "Sure, here is the plan:\n[\"Respond\"]\nThat should do it."}
	engine := NewLLMEngine(completer, &stubTools{tools: weatherTools})

	plan, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("hi"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, types.StepRespond, plan.Steps[0].Kind)
}

func TestLLMEngineNormalizesCase(t *testing.T) {
	completer := &stubCompleter{out: `["MEMORY", "Get_Weather"]`}
	engine := NewLLMEngine(completer, &stubTools{tools: weatherTools})

	plan, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("weather"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "get_weather", plan.Steps[1].Name, "tool name should be canonical")
}

func TestLLMEngineRejectsUnknownStep(t *testing.T) {
	completer := &stubCompleter{out: `["teleport"]`}
	engine := NewLLMEngine(completer, &stubTools{tools: weatherTools})

	_, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("beam me up"))
	var derr *DecisionError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Reason, "teleport")
}

func TestLLMEngineRejectsMalformedOutput(t *testing.T) {
	completer := &stubCompleter{out: "I would start by checking the weather."}
	engine := NewLLMEngine(completer, &stubTools{tools: weatherTools})

	_, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("weather"))
	var derr *DecisionError
	require.ErrorAs(t, err, &derr)
}

func TestLLMEngineCompletionFailure(t *testing.T) {
	boom := errors.New("model unavailable")
	completer := &stubCompleter{err: boom}
	engine := NewLLMEngine(completer, &stubTools{tools: weatherTools})

	_, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("hi"))
	var derr *DecisionError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, boom)
}

func TestLLMEnginePlansWithoutToolsOnListFailure(t *testing.T) {
	completer := &stubCompleter{out: `["Respond"]`}
	engine := NewLLMEngine(completer, &stubTools{err: errors.New("server down")})

	plan, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("hi"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
}

func TestLLMEngineNilToolLister(t *testing.T) {
	completer := &stubCompleter{out: `["Respond"]`}
	engine := NewLLMEngine(completer, nil)

	plan, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("hi"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
}

func TestLLMEngineEmptyPlan(t *testing.T) {
	completer := &stubCompleter{out: `[]`}
	engine := NewLLMEngine(completer, &stubTools{tools: weatherTools})

	plan, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("..."))
	require.NoError(t, err)
	assert.Empty(t, plan.Steps)
}

func TestStaticEngineDefaults(t *testing.T) {
	engine := NewStaticEngine()
	plan, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("hi"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, types.StepMemory, plan.Steps[0].Kind)
	assert.Equal(t, types.StepProfile, plan.Steps[1].Kind)
	assert.Equal(t, types.StepRelationship, plan.Steps[2].Kind)
}

func TestStaticEngineCustomSteps(t *testing.T) {
	engine := NewStaticEngine(types.RespondStep("pong"))
	plan, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("ping"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "pong", plan.Steps[0].Text)
}

func TestLLMEnginePersonaInPrompt(t *testing.T) {
	completer := &stubCompleter{out: `["Respond"]`}
	engine := NewLLMEngine(completer, &stubTools{tools: weatherTools})
	engine.SetPersona(types.Persona{Name: "Marvin", Style: types.StyleFormal})

	_, err := engine.Plan(context.Background(), types.SessionContext{}, testEvent("hello"))
	require.NoError(t, err)
	assert.Contains(t, completer.lastReq.System, `"Marvin"`)
	assert.Contains(t, completer.lastReq.System, "formal")
}
