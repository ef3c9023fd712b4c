package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/plan"
	"github.com/agentd-ai/agentd/internal/workflow"
	"github.com/agentd-ai/agentd/pkg/types"
)

// session is one conversation actor. It owns its context exclusively and
// processes its inbox strictly in order; concurrency exists only across
// sessions.
type session struct {
	id     string
	source string
	flavor types.SessionFlavor

	inbox  chan types.InputEvent
	memory map[string]string

	deps sessionDeps
	log  *zerolog.Logger
}

// sessionDeps is everything a session actor borrows from the core.
type sessionDeps struct {
	in       *event.InputBus
	engine   plan.Engine
	executor *workflow.Executor
	gate     IntentGate
	emit     func(types.OutputEvent)
	// retire removes the session from the manager when the actor exits.
	retire      func(ctx context.Context, id string)
	idleTimeout time.Duration
	// store, when set, persists memory across actor lifetimes.
	store MemoryStore
}

func newSession(id string, ev types.InputEvent, inboxSize int, deps sessionDeps) *session {
	if inboxSize <= 0 {
		inboxSize = 64
	}
	s := &session{
		id:     id,
		source: ev.Source,
		flavor: ev.Flavor,
		inbox:  make(chan types.InputEvent, inboxSize),
		memory: make(map[string]string),
		deps:   deps,
		log:    logging.Session("session", id),
	}
	if deps.store != nil {
		if mem, err := deps.store.LoadMemory(id); err == nil && len(mem) > 0 {
			s.memory = mem
			s.log.Debug().Int("keys", len(mem)).Msg("memory restored")
		}
	}
	return s
}

// run is the actor loop. It exits when the inbox closes or the idle timer
// fires.
func (s *session) run(ctx context.Context) {
	s.log.Info().Str("source", s.source).Msg("session started")
	defer s.log.Info().Msg("session stopped")
	defer s.deps.retire(ctx, s.id)
	defer s.persist()

	var idle *time.Timer
	var idleC <-chan time.Time
	if s.deps.idleTimeout > 0 {
		idle = time.NewTimer(s.deps.idleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-idleC:
			s.log.Info().Dur("idle", s.deps.idleTimeout).Msg("session idle, reaping")
			return
		case ev, ok := <-s.inbox:
			if !ok {
				return
			}
			if idle != nil {
				if !idle.Stop() {
					<-idle.C
				}
				idle.Reset(s.deps.idleTimeout)
			}
			s.handle(ctx, ev)
		}
	}
}

// persist snapshots memory on actor exit.
func (s *session) persist() {
	if s.deps.store == nil {
		return
	}
	if err := s.deps.store.SaveMemory(s.id, s.memory); err != nil {
		s.log.Warn().Err(err).Msg("memory not persisted")
	}
}

// handle processes one input event end to end. No error in here kills the
// session; failures degrade to error outputs.
func (s *session) handle(ctx context.Context, ev types.InputEvent) {
	// Claim is the exactly-once gate. Losing it means an elicitation
	// waiter already consumed this event as a reply.
	if !s.deps.in.Claim(ev.ID) {
		s.log.Debug().Str("event", ev.ID).Msg("event already claimed, skipping")
		return
	}

	sctx := types.SessionContext{
		SessionID: s.id,
		Source:    ev.Source,
		Flavor:    s.flavor,
		Memory:    s.memory,
	}

	text := ev.Text()
	if s.deps.gate.Evaluate(ctx, sctx, text) == IntentIgnore {
		s.log.Debug().Msg("intent gate: ignore")
		return
	}

	wfPlan, err := s.deps.engine.Plan(ctx, sctx, ev)
	if err != nil {
		var derr *plan.DecisionError
		if !errors.As(err, &derr) {
			s.log.Error().Err(err).Msg("planning failed")
			s.deps.emit(types.NewErrorOutput(s.id, ev.Source, "planning failed: "+err.Error()))
			return
		}
		// Degrade to a canned response naming the failure. No second
		// model call; the planner already failed once.
		s.log.Warn().Err(derr).Msg("decision failed, degrading to canned response")
		wfPlan = types.WorkflowPlan{Steps: []types.StepSpec{
			types.RespondStep("I could not work out how to handle that (" + derr.Error() + "). Please try rephrasing."),
		}}
	}

	outputs, err := s.deps.executor.Run(ctx, sctx, wfPlan, ev)
	for _, out := range outputs {
		s.deps.emit(out)
	}
	if err != nil {
		var serr *workflow.StepError
		if errors.As(err, &serr) {
			s.deps.emit(types.NewErrorOutput(s.id, ev.Source, serr.Error()))
			return
		}
		s.deps.emit(types.NewErrorOutput(s.id, ev.Source, "workflow failed: "+err.Error()))
	}
}
