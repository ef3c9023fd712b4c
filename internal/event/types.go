package event

import "github.com/agentd-ai/agentd/pkg/types"

// Watermill topics mirrored by the buses. Channel adapters and the web
// server can subscribe through the underlying gochannel pubsub when they
// want the serialized stream instead of typed callbacks.
const (
	TopicInput  = "agentd.input"
	TopicOutput = "agentd.output"
)

// InputSubscriber receives input events in publish order.
type InputSubscriber func(event types.InputEvent)

// OutputSubscriber receives output events in publish order.
type OutputSubscriber func(event types.OutputEvent)

// Predicate selects input events during a Wait.
type Predicate func(event types.InputEvent) bool

// BySession matches input events belonging to one session.
func BySession(sessionID string) Predicate {
	return func(ev types.InputEvent) bool {
		return ev.EffectiveSessionID() == sessionID
	}
}
