package session

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// armTimerLocked replaces any pending auto-advance with a one-shot timer that calls
// advance after d. Only one timer is ever outstanding per session.
func (s *Session) armTimerLocked(d time.Duration) {
	s.cancelTimerLocked()

	armed := &armedTimer{
		timer: s.opts.Clock.NewTimer(d),
		stop:  make(chan struct{}),
	}
	s.timer = armed
	go s.awaitTimer(armed)

	log.Debug().
		Str("session_code", s.Code).
		Dur("duration", d).
		Msg("scheduled auto-advance")
}

// awaitTimer waits for a timer to fire and advances the session, unless the timer
// was cancelled or replaced while this goroutine was waiting for the lock.
func (s *Session) awaitTimer(armed *armedTimer) {
	select {
	case <-armed.timer.Chan():
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.timer != armed {
			log.Debug().Str("session_code", s.Code).Msg("stale auto-advance ignored")
			return
		}
		s.timer = nil
		s.touchLocked()

		log.Debug().Str("session_code", s.Code).Int("question_index", s.index).Msg("auto-advance fired")
		s.advanceLocked()
	case <-armed.stop:
	}
}

// cancelTimerLocked stops and forgets the pending auto-advance, if any.
func (s *Session) cancelTimerLocked() {
	if s.timer == nil {
		return
	}
	stopAndDrainTimer(s.timer.timer)
	close(s.timer.stop)
	s.timer = nil
}

// stopAndDrainTimer stops a timer and drains its channel so a fired value is not left behind.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
