/*
Package event provides the input and output buses at the heart of the agentd
runtime.

The input bus carries events arriving from channel adapters (console, TCP,
web) toward the session dispatcher. The output bus carries results, prompts,
and errors back to the adapters. Both are built on watermill's gochannel for
infrastructure while keeping direct-call semantics to preserve type
information.

# Ordering

Each subscriber gets its own delivery lane: a buffered channel drained by a
dedicated goroutine. Publish order is preserved per subscriber, and a slow
subscriber does not reorder events for the others. Per-session FIFO
processing is layered on top of this by the session actors.

# Claims

Input events have a stable ULID identity, and the input bus keeps a
consumption ledger. Claim(id) returns true exactly once per event; the
winning caller owns processing. This is how a session actor and an
elicitation waiter racing for the same reply resolve to exactly one
processor:

	if !bus.Claim(ev.ID) {
		return // someone else consumed it
	}
	process(ev)

The ledger is bounded; claims are evicted oldest-first once it exceeds its
window.

# Waiters

Waiters stream events matching a predicate, typically all traffic for one
session:

	w := bus.NewWaiter(event.BySession(sessionID))
	defer w.Close()
	for ev := range w.C {
		if bus.Claim(ev.ID) {
			// this reply is ours
		}
	}

Waiter channels are buffered; a waiter that stops draining misses events
rather than stalling publishers.

# Integration with Watermill

Both buses mirror their serialized traffic to watermill topics (TopicInput,
TopicOutput). Consumers that want the raw JSON stream, such as the web
event stream, subscribe through PubSub():

	messages, _ := bus.PubSub().Subscribe(ctx, event.TopicOutput)

This keeps a migration path to distributed message brokers open without
changing the typed API.
*/
package event
