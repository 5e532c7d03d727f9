package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/model"
	"github.com/edvin/devtunnel/internal/platform"
)

const subscriberBuffer = 32

// Events fans completed-operation notifications out to subscribers. A
// subscriber that falls behind loses events; publishers never block.
type Events struct {
	mu     sync.Mutex
	subs   map[chan model.Event]struct{}
	logger zerolog.Logger
	now    func() time.Time
}

func NewEvents(logger zerolog.Logger) *Events {
	return &Events{
		subs:   make(map[chan model.Event]struct{}),
		logger: logger.With().Str("component", "events").Logger(),
		now:    time.Now,
	}
}

// Publish delivers an event to every current subscriber.
func (e *Events) Publish(typ, hostname, message string) {
	if e == nil {
		return
	}
	ev := model.Event{
		ID:       platform.NewID(),
		Type:     typ,
		Hostname: hostname,
		Message:  message,
		Time:     e.now().UTC(),
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.logger.Debug().Str("type", typ).Msg("subscriber full, event dropped")
		}
	}
}

// Subscribe returns a channel of events that is closed once ctx is done.
func (e *Events) Subscribe(ctx context.Context) <-chan model.Event {
	ch := make(chan model.Event, subscriberBuffer)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		delete(e.subs, ch)
		close(ch)
		e.mu.Unlock()
	}()
	return ch
}

// Subscribers reports the number of live subscriptions.
func (e *Events) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
