package console

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/pkg/types"
)

func TestRunPublishesLines(t *testing.T) {
	in := event.NewInputBus()
	defer in.Close()

	events := make(chan types.InputEvent, 4)
	unsub := in.Subscribe(func(ev types.InputEvent) {
		events <- ev
	})
	defer unsub()

	reader := strings.NewReader("hello\n\nworld\n")
	ch := New(in, reader, &strings.Builder{})

	require.NoError(t, ch.Run(context.Background()))

	for _, want := range []string{"hello", "world"} {
		select {
		case ev := <-events:
			assert.Equal(t, "console", ev.Source)
			assert.Equal(t, "console", ev.EffectiveSessionID())
			assert.Equal(t, want, ev.Text())
			assert.NotEmpty(t, ev.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for blank line: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitRendersKinds(t *testing.T) {
	var buf strings.Builder
	ch := New(event.NewInputBus(), strings.NewReader(""), &buf)

	ch.Emit(types.NewTextOutput("console", "console", "hi there"))
	ch.Emit(types.NewErrorOutput("console", "console", "boom"))
	ch.Emit(types.OutputEvent{
		SessionID: "console",
		Source:    "console",
		Kind:      types.OutputElicitation,
		Content:   map[string]any{"message": "which city?", "schema": map[string]any{}},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "hi there", lines[0])
	assert.Equal(t, "error: boom", lines[1])
	assert.Equal(t, "? which city?", lines[2])
}

func TestEmitMarshalsStructuredContent(t *testing.T) {
	var buf strings.Builder
	ch := New(event.NewInputBus(), strings.NewReader(""), &buf)

	ch.Emit(types.OutputEvent{
		SessionID: "console",
		Source:    "console",
		Kind:      types.OutputText,
		Content:   map[string]any{"temp": 21},
	})
	assert.JSONEq(t, `{"temp":21}`, strings.TrimSpace(buf.String()))
}
