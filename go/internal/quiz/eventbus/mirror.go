// Package eventbus mirrors session broadcasts onto NATS JetStream for consumers
// outside the gateway process.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/quiz/events"
)

// Publisher sends one event to the bus.
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Mirror is an events.Broadcaster that hands every event to a Publisher on its
// own goroutine. When the queue is full the event is dropped with a warning.
type Mirror struct {
	publisher      Publisher
	queue          chan *events.Event
	publishTimeout time.Duration

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

func NewMirror(publisher Publisher, queueSize int, publishTimeout time.Duration) *Mirror {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &Mirror{
		publisher:      publisher,
		queue:          make(chan *events.Event, queueSize),
		publishTimeout: publishTimeout,
		done:           make(chan struct{}),
	}
}

// Broadcast queues event for publishing. It never blocks.
func (m *Mirror) Broadcast(code string, event *events.Event) {
	select {
	case <-m.done:
		return
	default:
	}

	select {
	case m.queue <- event:
	default:
		log.Warn().
			Str("session_code", code).
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("event mirror queue full, dropping event")
	}
}

func (m *Mirror) Start() {
	m.wg.Add(1)
	go m.run()
	log.Info().Int("queue_size", cap(m.queue)).Msg("event mirror started")
}

// Stop publishes what is still queued and returns.
func (m *Mirror) Stop() {
	m.once.Do(func() {
		close(m.done)
		m.wg.Wait()
		log.Info().Msg("event mirror stopped")
	})
}

func (m *Mirror) run() {
	defer m.wg.Done()
	for {
		select {
		case event := <-m.queue:
			m.publish(event)
		case <-m.done:
			for {
				select {
				case event := <-m.queue:
					m.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (m *Mirror) publish(event *events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), m.publishTimeout)
	defer cancel()

	if err := m.publisher.Publish(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("session_code", event.Code).
			Str("event_id", event.ID).
			Msg("failed to mirror event")
	}
}
