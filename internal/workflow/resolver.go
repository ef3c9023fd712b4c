package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/provider"
	"github.com/agentd-ai/agentd/pkg/types"
)

// Resolver turns planner-provided step arguments into the JSON object a
// tool expects. Object arguments pass through untouched. Anything else
// (a bare instruction string, null) is resolved with a completion against
// the tool's schema: extracted values are normalized, and every required
// field still missing is set to explicit null so the tool server can
// elicit it from the user instead of receiving a fabricated value.
type Resolver struct {
	tools     ToolClient
	completer Completer
}

// NewResolver builds a resolver. With a nil completer non-object args pass
// through unresolved.
func NewResolver(tools ToolClient, completer Completer) *Resolver {
	return &Resolver{tools: tools, completer: completer}
}

// Resolve produces the argument object for one tool call.
func (r *Resolver) Resolve(ctx context.Context, tool string, args json.RawMessage, sctx types.SessionContext, inputText string) (json.RawMessage, error) {
	if isObject(args) {
		return args, nil
	}
	if r.completer == nil || r.tools == nil {
		return args, nil
	}

	schema, err := r.tools.ToolSchema(ctx, tool)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", tool, err)
	}
	required, err := r.tools.RequiredFields(ctx, tool)
	if err != nil {
		return nil, fmt.Errorf("required fields for %s: %w", tool, err)
	}

	description := ""
	if tools, err := r.tools.ListTools(ctx); err == nil {
		for _, t := range tools {
			if t.Name == tool {
				description = t.Description
				break
			}
		}
	}

	text := argText(args)
	if text == "" {
		text = inputText
	}

	out, err := r.completer.Complete(ctx, &provider.CompletionRequest{
		System:      extractorSystem(tool, description, schema, required),
		Prompt:      extractorPrompt(text, sctx),
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("parameter extraction for %s: %w", tool, err)
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(extractObject(out)), &values); err != nil {
		return nil, fmt.Errorf("parameter extraction for %s returned %q: %w", tool, out, err)
	}

	normalizeNullStrings(values)
	for _, field := range required {
		if v, ok := values[field]; !ok || v == nil {
			values[field] = nil
		}
	}

	resolved, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}

	logging.Component("resolver").Debug().
		Str("tool", tool).
		RawJSON("args", resolved).
		Msg("parameters resolved")
	return resolved, nil
}

func extractorSystem(tool, description string, schema json.RawMessage, required []string) string {
	if len(schema) == 0 {
		return "Convert user's input to a JSON object of tool parameters. Respond with ONLY a valid JSON object."
	}
	return fmt.Sprintf(`You are a strict parameter extractor. Your goal is to convert user input into a JSON object for a specific tool.
Tool Name: %s
Tool Description: %s
Parameter Schema: %s
Required Fields: %v

Instructions:
1. ONLY extract parameters that are explicitly mentioned or clearly implied in the user's input.
2. Return ONLY the JSON object. No markdown, no explanations.
3. If a required field cannot be found in the input, use null - the system will prompt the user.
4. Prioritize accuracy over trying to complete missing information.`,
		tool, description, schema, required)
}

func extractorPrompt(text string, sctx types.SessionContext) string {
	if last := sctx.MemoryValue("last_tool_result"); last != "" {
		return fmt.Sprintf("Input: %s\nPrevious result: %s\nReturn JSON:", text, last)
	}
	return fmt.Sprintf("Input: %s\nReturn JSON:", text)
}

// argText extracts the instruction text of a non-object argument.
func argText(args json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(args, &s); err == nil {
		return s
	}
	if string(args) == "null" {
		return ""
	}
	return string(args)
}

func isObject(args json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(args))
	return strings.HasPrefix(trimmed, "{")
}

// normalizeNullStrings rewrites the literal string "null" to JSON null,
// recursively. Models emit it when told to use null for unknowns.
func normalizeNullStrings(values map[string]any) {
	for k, v := range values {
		values[k] = normalizeValue(v)
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case string:
		if strings.EqualFold(strings.TrimSpace(t), "null") {
			return nil
		}
		return t
	case map[string]any:
		normalizeNullStrings(t)
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeValue(item)
		}
		return t
	default:
		return v
	}
}
