package session

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CodeGenerator produces candidate join codes. Collisions are retried by the Registry.
type CodeGenerator func() string

// RandomCode returns a random six digit code with no leading zero.
func RandomCode() string {
	return fmt.Sprintf("%06d", 100000+rand.IntN(900000))
}

// Registry owns the code -> Session mapping. Its lock only guards the map; each
// Session serializes its own operations.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newCode  CodeGenerator
	opts     Options
}

// NewRegistry creates a registry whose sessions share opts. A nil generator uses RandomCode.
func NewRegistry(opts Options, newCode CodeGenerator) *Registry {
	if newCode == nil {
		newCode = RandomCode
	}
	return &Registry{
		sessions: make(map[string]*Session),
		newCode:  newCode,
		opts:     opts.withDefaults(),
	}
}

// Create registers a fresh session hosted by hostConnID under a code no active
// session uses.
func (r *Registry) Create(hostConnID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := r.newCode()
	for {
		if _, taken := r.sessions[code]; !taken {
			break
		}
		code = r.newCode()
	}

	s := newSession(code, hostConnID, r.opts)
	r.sessions[code] = s

	log.Info().
		Str("session_code", code).
		Str("session_id", s.ID).
		Str("host_conn_id", hostConnID).
		Int("active_sessions", len(r.sessions)).
		Msg("session created")

	return s
}

// Get looks up a session by code. A miss is a normal outcome.
func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Remove deregisters code. Removing an unknown code is a no-op.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[code]; ok {
		delete(r.sessions, code)
		log.Info().Str("session_code", code).Int("active_sessions", len(r.sessions)).Msg("session removed")
	}
}

// RemoveSession deregisters s only while its code still maps to s, so a recycled
// code is never released by a stale caller.
func (r *Registry) RemoveSession(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[s.Code]; ok && current == s {
		delete(r.sessions, s.Code)
		log.Info().Str("session_code", s.Code).Int("active_sessions", len(r.sessions)).Msg("session removed")
		return true
	}
	return false
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Idle returns the sessions whose last activity is at least ttl before now.
func (r *Registry) Idle(now time.Time, ttl time.Duration) []*Session {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	var idle []*Session
	for _, s := range snapshot {
		if now.Sub(s.IdleSince()) >= ttl {
			idle = append(idle, s)
		}
	}
	return idle
}
