package stream

import (
	"context"
	"errors"
	"time"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

// ErrSlowConsumer reports that the consumer stopped draining the stream
// within the send timeout. The producer must stop instead of buffering
// without bound.
var ErrSlowConsumer = errors.New("stream consumer too slow")

const (
	defaultBufferSize  = 32
	defaultSendTimeout = 5 * time.Second
)

// Emitter is the single-producer side of one request's event stream.
// Events keep their emission order; Emit fails once the consumer is gone
// or saturated past the timeout.
type Emitter struct {
	events      chan domain.StreamEvent
	sendTimeout time.Duration
	timer       *time.Timer
}

func NewEmitter(bufferSize int, sendTimeout time.Duration) *Emitter {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &Emitter{
		events:      make(chan domain.StreamEvent, bufferSize),
		sendTimeout: sendTimeout,
	}
}

// Events is the consumer side. It is closed by Close, never by Emit.
func (e *Emitter) Events() <-chan domain.StreamEvent {
	return e.events
}

// Emit enqueues one event. It blocks at most sendTimeout when the buffer
// is full and returns ErrSlowConsumer instead of blocking further; a done
// context returns its error immediately.
func (e *Emitter) Emit(ctx context.Context, event domain.StreamEvent) error {
	select {
	case e.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if e.timer == nil {
		e.timer = time.NewTimer(e.sendTimeout)
	} else {
		e.timer.Reset(e.sendTimeout)
	}
	defer e.timer.Stop()

	select {
	case e.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.timer.C:
		return ErrSlowConsumer
	}
}

// Close ends the stream. The producer calls it exactly once, after the
// terminal event.
func (e *Emitter) Close() {
	close(e.events)
}
