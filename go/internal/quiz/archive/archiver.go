// Package archive keeps the final standings of finished sessions in Postgres.
// Summaries are queued from the session state machine and written by a single
// background worker.
package archive

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/quiz/session"
)

// Store persists one finished session.
type Store interface {
	SaveSummary(ctx context.Context, summary session.Summary) error
}

type Archiver struct {
	store        Store
	queue        chan session.Summary
	writeTimeout time.Duration

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

func NewArchiver(store Store, queueSize int, writeTimeout time.Duration) *Archiver {
	if queueSize <= 0 {
		queueSize = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Archiver{
		store:        store,
		queue:        make(chan session.Summary, queueSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// Enqueue hands a summary to the worker. It never blocks; it is meant to be used
// as session.Options.OnEnded.
func (a *Archiver) Enqueue(summary session.Summary) {
	select {
	case <-a.done:
		log.Warn().Str("session_code", summary.Code).Msg("archiver stopped, summary discarded")
		return
	default:
	}

	select {
	case a.queue <- summary:
	default:
		log.Warn().
			Str("session_code", summary.Code).
			Str("run_id", summary.RunID).
			Msg("archive queue full, summary discarded")
	}
}

func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.run()
	log.Info().Int("queue_size", cap(a.queue)).Msg("session archiver started")
}

// Stop writes what is still queued and returns.
func (a *Archiver) Stop() {
	a.once.Do(func() {
		close(a.done)
		a.wg.Wait()
		log.Info().Msg("session archiver stopped")
	})
}

func (a *Archiver) run() {
	defer a.wg.Done()
	for {
		select {
		case summary := <-a.queue:
			a.save(summary)
		case <-a.done:
			for {
				select {
				case summary := <-a.queue:
					a.save(summary)
				default:
					return
				}
			}
		}
	}
}

func (a *Archiver) save(summary session.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()

	if err := a.store.SaveSummary(ctx, summary); err != nil {
		log.Error().
			Err(err).
			Str("session_code", summary.Code).
			Str("run_id", summary.RunID).
			Msg("failed to archive session")
		return
	}

	log.Info().
		Str("session_code", summary.Code).
		Str("run_id", summary.RunID).
		Str("reason", summary.Reason).
		Int("participants", len(summary.Leaderboard)).
		Msg("session archived")
}
