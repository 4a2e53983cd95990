package docstore

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/storeops/storeops/pkg/logger"
)

// ChangeEvent is one change notification delivered by a Subscription.
type ChangeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
	DocumentKey   bson.M `bson:"documentKey"`
}

// Subscription delivers change notifications from a change stream. It is a
// resource the caller owns: events arrive on Events until the stream ends or
// Close is called, and Close must be called to release the stream and stop
// the pump goroutine.
type Subscription struct {
	lggr   logger.Logger
	stream ChangeStream

	events chan ChangeEvent
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error

	mu  sync.Mutex
	err error
}

// NewSubscription starts pumping events from stream. The caller must call
// Close when done.
func NewSubscription(stream ChangeStream, lggr logger.Logger) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		lggr:   lggr.Named("subscription"),
		stream: stream,
		events: make(chan ChangeEvent),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.pump(ctx)

	return s
}

// Events returns the channel change notifications are delivered on. The
// channel is closed when the stream ends or the subscription is closed; check
// Err afterwards.
func (s *Subscription) Events() <-chan ChangeEvent {
	return s.events
}

// Err returns the terminal stream error, if any. Valid after Events is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Close stops the pump and releases the underlying stream. It is safe to call
// multiple times.
func (s *Subscription) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.closeErr = s.stream.Close(ctx)
	})

	return s.closeErr
}

func (s *Subscription) pump(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	for s.stream.Next(ctx) {
		var ev ChangeEvent
		if err := s.stream.Decode(&ev); err != nil {
			s.setErr(err)
			s.lggr.Errorw("Failed to decode change event", "error", err)

			return
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}

	if err := s.stream.Err(); err != nil && ctx.Err() == nil {
		s.setErr(err)
		s.lggr.Errorw("Change stream terminated", "error", err)
	}
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
}
