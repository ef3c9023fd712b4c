package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/mcp"
	"github.com/agentd-ai/agentd/internal/task"
)

// Built-in tool names served by TaskTools itself.
const (
	toolListTasks  = "list_running_tasks"
	toolCancelTask = "cancel_task"
)

var listTasksTool = mcp.Tool{
	Name:        toolListTasks,
	Description: "Lists running background tasks. Call this first when the user wants to check on or cancel a task; the output maps the user's description to a precise task id.",
	InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
}

var cancelTaskTool = mcp.Tool{
	Name:        toolCancelTask,
	Description: "Cancels a background task by id. The id must come from the output of list_running_tasks; never guess it.",
	InputSchema: json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"string","description":"The id of the task to cancel, exactly as returned by list_running_tasks."}},"required":["task_id"]}`),
}

// TaskTools decorates a ToolClient with background task bookkeeping. Tools
// the server marks long-running are dispatched to a goroutine and tracked
// in the shared registry; the step returns immediately and the result is
// delivered through notify when the task finishes. The list_running_tasks
// and cancel_task tools are served locally.
type TaskTools struct {
	inner   ToolClient
	manager *task.Manager
	// notify delivers a finished task's result back to the session.
	// May be nil, in which case results are only logged.
	notify func(text string)
}

// NewTaskTools wraps a client. manager must be shared across sessions so
// any session can list and cancel tasks.
func NewTaskTools(inner ToolClient, manager *task.Manager, notify func(text string)) *TaskTools {
	return &TaskTools{inner: inner, manager: manager, notify: notify}
}

func (t *TaskTools) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	tools, err := t.inner.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	return append(append([]mcp.Tool{}, tools...), listTasksTool, cancelTaskTool), nil
}

func (t *TaskTools) ToolSchema(ctx context.Context, name string) (json.RawMessage, error) {
	switch name {
	case toolListTasks:
		return listTasksTool.InputSchema, nil
	case toolCancelTask:
		return cancelTaskTool.InputSchema, nil
	}
	return t.inner.ToolSchema(ctx, name)
}

func (t *TaskTools) RequiredFields(ctx context.Context, name string) ([]string, error) {
	switch name {
	case toolListTasks:
		return nil, nil
	case toolCancelTask:
		return []string{"task_id"}, nil
	}
	return t.inner.RequiredFields(ctx, name)
}

func (t *TaskTools) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case toolListTasks:
		return t.listTasks()
	case toolCancelTask:
		return t.cancelTask(args)
	}
	if t.longRunning(ctx, name) {
		return t.launch(name, args), nil
	}
	return t.inner.CallTool(ctx, name, args)
}

func (t *TaskTools) listTasks() (string, error) {
	data, err := json.MarshalIndent(t.manager.List(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *TaskTools) cancelTask(args json.RawMessage) (string, error) {
	var params struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.TaskID == "" {
		return "", fmt.Errorf("missing required argument: task_id")
	}
	if t.manager.Cancel(params.TaskID) {
		return fmt.Sprintf("task %s cancelled", params.TaskID), nil
	}
	return fmt.Sprintf("task %s not found", params.TaskID), nil
}

// longRunning consults the tool catalog. The client caches the listing, so
// this is one lookup per reconnect, not per call.
func (t *TaskTools) longRunning(ctx context.Context, name string) bool {
	tools, err := t.inner.ListTools(ctx)
	if err != nil {
		return false
	}
	for _, tool := range tools {
		if tool.Name == name {
			return tool.LongRunning
		}
	}
	return false
}

// launch runs the tool call in the background. The task context is
// detached from the step context so the task survives the workflow that
// started it; cancel_task is the way to stop it.
func (t *TaskTools) launch(name string, args json.RawMessage) string {
	id := event.NewEventID()
	tctx, cancel := context.WithCancel(context.Background())
	t.manager.Add(id, name, compactPrompt(args), cancel)

	log := logging.Component("task")
	go func() {
		defer cancel()
		result, err := t.inner.CallTool(tctx, name, args)
		t.manager.Remove(id)
		switch {
		case tctx.Err() != nil:
			// Cancelled through cancel_task. No notification; the
			// cancelling session already got a confirmation.
			log.Info().Str("task", id).Str("tool", name).Msg("background task cancelled")
		case err != nil:
			log.Warn().Err(err).Str("task", id).Str("tool", name).Msg("background task failed")
			if t.notify != nil {
				t.notify(fmt.Sprintf("background task %s (%s) failed: %v", id, name, err))
			}
		default:
			log.Info().Str("task", id).Str("tool", name).Msg("background task finished")
			if t.notify != nil {
				t.notify(fmt.Sprintf("background task %s (%s) finished: %s", id, name, result))
			}
		}
	}()

	return fmt.Sprintf("started background task %s for %s", id, name)
}

// compactPrompt condenses the call arguments for task listings.
func compactPrompt(args json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, args); err != nil {
		return string(args)
	}
	s := buf.String()
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
