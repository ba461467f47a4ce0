// Package taskpool generalizes the teacher's repeated hand-written
// channel-actor goroutines (server/topic.go's run() loop selecting on
// broadcast/meta/reg/unreg, server/session.go's per-session writer
// loop) into a single Task abstraction: one goroutine, one buffered
// inbox, cooperative single-threaded state.
package taskpool

import (
	"context"
	"log"
)

// Message is whatever a Task's inbox carries; slot lets a caller route
// to one of several logical channels the way the teacher's Topic used
// four separate Go channels (broadcast/meta/reg/unreg) instead of one.
type Message struct {
	Slot int
	Body any
}

// Handler processes one inbox message; it returns no error. Calling the
// Task's Stop from inside a handler blocks forever, because Stop waits
// for the goroutine the handler runs on.
type Handler func(ctx context.Context, msg Message)

// Task is a single goroutine with a buffered inbox, modeled on the
// teacher's per-topic run() loop.
type Task struct {
	name    string
	inbox   chan Message
	done    chan struct{}
	cancel  context.CancelFunc
	logger  *log.Logger
}

// New starts a task named name, running handler in its own goroutine
// until Stop is called or ctx is canceled. inboxSize mirrors the
// teacher's per-channel buffer sizes (e.g. broadcast=256, meta/reg/
// unreg=32): size it to the burstiness expected on this task.
func New(ctx context.Context, name string, inboxSize int, logger *log.Logger, handler Handler) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		name:   name,
		inbox:  make(chan Message, inboxSize),
		done:   make(chan struct{}),
		cancel: cancel,
		logger: logger,
	}
	go t.run(ctx, handler)
	return t
}

func (t *Task) run(ctx context.Context, handler Handler) {
	defer close(t.done)
	for {
		select {
		case msg := <-t.inbox:
			handler(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// Post enqueues a message on slot. It silently drops the message if
// the task has already stopped, mirroring the teacher's convention of
// never blocking a caller on a torn-down topic.
func (t *Task) Post(slot int, body any) {
	select {
	case t.inbox <- Message{Slot: slot, Body: body}:
	case <-t.done:
		if t.logger != nil {
			t.logger.Printf("taskpool: %s: dropped message on closed task", t.name)
		}
	}
}

// Stop cancels the task's context and waits for its goroutine to exit.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

// Done reports whether the task has stopped.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
