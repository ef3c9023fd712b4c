package types

// SessionContext is the read-side snapshot of a session handed to the
// decision engine and the workflow executor. The owning actor mutates the
// underlying session; a SessionContext is valid for one decision cycle.
type SessionContext struct {
	SessionID string
	Source    string
	Flavor    SessionFlavor
	// Memory accumulates cross-step context within the session, for
	// example last_tool_result after a tool step.
	Memory map[string]string
}

// MemoryValue returns a memory entry, empty when absent or Memory is nil.
func (s SessionContext) MemoryValue(key string) string {
	if s.Memory == nil {
		return ""
	}
	return s.Memory[key]
}
