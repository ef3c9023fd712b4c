package types

import "encoding/json"

// StepKind identifies a workflow step variant. The set is closed; the
// executor owns the single exhaustive dispatch over it.
type StepKind string

const (
	// StepTool invokes a remote tool through the tool protocol client.
	StepTool StepKind = "tool"
	// StepRespond emits a direct text response without touching tools.
	StepRespond StepKind = "respond"
	// StepMemory refreshes the session's memory context.
	StepMemory StepKind = "memory"
	// StepProfile refreshes the session's profile context.
	StepProfile StepKind = "profile"
	// StepRelationship refreshes relationship context and emits a summary.
	StepRelationship StepKind = "relationship"
)

// StepSpec is one planned step. For StepTool, Args may be a JSON object, a
// bare string, or null; the parameter resolver normalizes it before the call.
// For StepRespond, Text carries the reply.
type StepSpec struct {
	Kind StepKind        `json:"kind"`
	Name string          `json:"name,omitempty"`
	Args json.RawMessage `json:"args,omitempty"`
	Text string          `json:"text,omitempty"`
}

// ToolStep builds a tool-invocation step.
func ToolStep(name string, args json.RawMessage) StepSpec {
	return StepSpec{Kind: StepTool, Name: name, Args: args}
}

// RespondStep builds a direct-response step.
func RespondStep(text string) StepSpec {
	return StepSpec{Kind: StepRespond, Text: text}
}

// WorkflowPlan is the ordered outcome of one decision cycle. A plan is
// executed to completion or first abort and never persisted.
type WorkflowPlan struct {
	Steps []StepSpec `json:"steps"`
}
