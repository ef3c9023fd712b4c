// Package console is the stdin/stdout channel: lines in, replies out.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/pkg/types"
)

// HandlerID is the routing id of the console output handler.
const HandlerID = "console"

// Channel reads lines from a reader and publishes them as input events with
// source "console". All console traffic shares one implicit session.
type Channel struct {
	in     *event.InputBus
	reader io.Reader
	writer io.Writer
}

// New creates a console channel. reader and writer default to stdin and
// stdout.
func New(in *event.InputBus, reader io.Reader, writer io.Writer) *Channel {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Channel{in: in, reader: reader, writer: writer}
}

// Run reads lines until EOF or ctx cancellation.
func (c *Channel) Run(ctx context.Context) error {
	log := logging.Component("console")
	scanner := bufio.NewScanner(c.reader)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}
		content, err := json.Marshal(map[string]string{"line": line})
		if err != nil {
			continue
		}
		ev := c.in.Publish(types.InputEvent{Source: "console", Content: content})
		log.Debug().Str("event", ev.ID).Msg("line published")
	}

	log.Info().Msg("console input closed")
	return scanner.Err()
}

// Emit prints one output event. Registered with the core as the "console"
// output handler.
func (c *Channel) Emit(ev types.OutputEvent) {
	fmt.Fprintln(c.writer, renderOutput(ev))
}

// renderOutput formats an output event as one console line.
func renderOutput(ev types.OutputEvent) string {
	switch ev.Kind {
	case types.OutputElicitation:
		if m, ok := ev.Content.(map[string]any); ok {
			if msg, ok := m["message"].(string); ok {
				return "? " + msg
			}
		}
		return fmt.Sprintf("? %v", ev.Content)
	case types.OutputError:
		return fmt.Sprintf("error: %v", ev.Content)
	case types.OutputProgress:
		return fmt.Sprintf("... %v", ev.Content)
	default:
		if s, ok := ev.Content.(string); ok {
			return s
		}
		data, err := json.Marshal(ev.Content)
		if err != nil {
			return fmt.Sprintf("%v", ev.Content)
		}
		return string(data)
	}
}
