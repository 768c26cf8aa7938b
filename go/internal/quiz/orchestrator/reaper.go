package orchestrator

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/quiz/events"
)

// Reaper periodically ends sessions that have seen no activity for ttl.
type Reaper struct {
	orch     *Orchestrator
	clock    clockwork.Clock
	ttl      time.Duration
	interval time.Duration

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

func NewReaper(orch *Orchestrator, clock clockwork.Clock, ttl, interval time.Duration) *Reaper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reaper{
		orch:     orch,
		clock:    clock,
		ttl:      ttl,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
	log.Info().Dur("interval", r.interval).Dur("ttl", r.ttl).Msg("idle session reaper started")
}

func (r *Reaper) Stop() {
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
		log.Info().Msg("idle session reaper stopped")
	})
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}

// Sweep ends and removes every idle session once. It returns how many were reaped.
// Each candidate is re-checked under its own lock, so a session touched after the
// scan survives.
func (r *Reaper) Sweep() int {
	reaped := 0
	for _, s := range r.orch.registry.Idle(r.clock.Now(), r.ttl) {
		if !s.EndIfIdle(r.clock.Now(), r.ttl, events.EndReasonIdle) {
			log.Debug().Str("session_code", s.Code).Msg("idle session became active, skipped")
			continue
		}
		log.Info().
			Str("session_code", s.Code).
			Time("last_activity", s.IdleSince()).
			Msg("reaped idle session")
		r.orch.teardown(s)
		reaped++
	}
	if reaped > 0 {
		log.Info().Int("count", reaped).Msg("reaped idle sessions")
	}
	return reaped
}
