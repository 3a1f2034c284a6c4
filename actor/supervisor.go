package actor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-review/core"
)

const defaultMailboxDepth = 64

// Supervisor owns one mailbox goroutine per stream and is the only Apply
// entry point. Events for the same stream are applied strictly in dequeue
// order, across any suspension inside the applier; different streams run
// fully in parallel.
type Supervisor struct {
	applier      core.EventApplier
	logger       core.Logger
	mailboxDepth int

	mu     sync.Mutex
	actors map[string]*streamActor
	closed bool
	wg     sync.WaitGroup

	// lifecycle is read-held across every mailbox send and write-held by
	// Close before any mailbox is closed, so an in-flight enqueue always
	// lands before shutdown and a late Apply errors instead of panicking.
	lifecycle sync.RWMutex
}

type SupervisorOption func(*Supervisor)

func WithMailboxDepth(depth int) SupervisorOption {
	return func(s *Supervisor) {
		if depth > 0 {
			s.mailboxDepth = depth
		}
	}
}

func WithSupervisorLogger(logger core.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSupervisor(applier core.EventApplier, options ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		applier:      applier,
		mailboxDepth: defaultMailboxDepth,
		actors:       map[string]*streamActor{},
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}
	return s
}

type envelope struct {
	ctx   context.Context
	event core.Event
	reply chan applyReply
}

type applyReply struct {
	result core.ApplyResult
	err    error
}

type streamActor struct {
	streamID string
	mailbox  chan envelope
}

// Apply enqueues the event on its stream's mailbox and waits for the
// outcome. Enqueueing blocks when the mailbox is full rather than dropping
// or reordering.
func (s *Supervisor) Apply(ctx context.Context, event core.Event) (core.ApplyResult, error) {
	if s == nil || s.applier == nil {
		return core.ApplyResult{}, fmt.Errorf("actor: supervisor is not configured")
	}
	streamID := strings.TrimSpace(event.StreamID)
	if streamID == "" {
		return core.ApplyResult{
			Outcome: core.ApplyOutcomeRejected,
			Reason:  core.RejectReasonValidationError,
			Message: "stream id is required",
		}, nil
	}

	s.lifecycle.RLock()
	actor, err := s.actorFor(streamID)
	if err != nil {
		s.lifecycle.RUnlock()
		return core.ApplyResult{}, err
	}

	env := envelope{ctx: ctx, event: event, reply: make(chan applyReply, 1)}
	select {
	case actor.mailbox <- env:
		s.lifecycle.RUnlock()
	case <-ctx.Done():
		s.lifecycle.RUnlock()
		return core.ApplyResult{}, ctx.Err()
	}

	select {
	case reply := <-env.reply:
		return reply.result, reply.err
	case <-ctx.Done():
		// The event stays queued and will still be applied; the caller
		// redelivers and dedup returns the recorded result.
		return core.ApplyResult{}, ctx.Err()
	}
}

func (s *Supervisor) actorFor(streamID string) (*streamActor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("actor: supervisor is closed")
	}
	if existing, ok := s.actors[streamID]; ok {
		return existing, nil
	}

	actor := &streamActor{
		streamID: streamID,
		mailbox:  make(chan envelope, s.mailboxDepth),
	}
	s.actors[streamID] = actor
	s.wg.Add(1)
	go s.run(actor)
	return actor, nil
}

func (s *Supervisor) run(actor *streamActor) {
	defer s.wg.Done()
	for env := range actor.mailbox {
		result, err := s.applier.Apply(env.ctx, env.event)
		if err != nil && s.logger != nil {
			s.logger.Error("actor: apply failed",
				"stream_id", actor.streamID,
				"delivery_id", env.event.DeliveryID,
				"error", err)
		}
		env.reply <- applyReply{result: result, err: err}
	}
}

// Close stops accepting events, drains every mailbox, and waits for the
// stream goroutines to exit. Senders already blocked on a full mailbox finish
// their enqueue before the mailbox is closed; their events are still applied
// during the drain.
func (s *Supervisor) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	actors := make([]*streamActor, 0, len(s.actors))
	for _, actor := range s.actors {
		actors = append(actors, actor)
	}
	s.mu.Unlock()

	// Waits for every in-flight enqueue; anything arriving after the closed
	// flag flipped fails in actorFor instead of reaching a send.
	s.lifecycle.Lock()
	for _, actor := range actors {
		close(actor.mailbox)
	}
	s.lifecycle.Unlock()
	s.wg.Wait()
}

var _ core.EventApplier = (*Supervisor)(nil)
