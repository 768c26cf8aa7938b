package orchestrator

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/questionset"
	"github.com/mcdev12/quizlive/go/internal/quiz/events"
	"github.com/mcdev12/quizlive/go/internal/quiz/quizerr"
	"github.com/mcdev12/quizlive/go/internal/quiz/session"
)

// Hub maintains which connections receive the broadcasts of a session code.
// DropRoom must be ordered after any broadcast already handed to the hub.
type Hub interface {
	Subscribe(code, connID string)
	Unsubscribe(code, connID string)
	DropRoom(code string)
}

// SetLoader resolves a named question set.
type SetLoader interface {
	Load(name string) (*questionset.Set, error)
}

// Orchestrator turns connection events into registry and session operations and
// remembers which sessions each connection hosts or has joined, so a disconnect
// can be resolved.
type Orchestrator struct {
	registry *session.Registry
	hub      Hub
	sets     SetLoader

	mu      sync.Mutex
	hosting map[string]map[string]*session.Session // conn id -> code -> session
	joined  map[string]map[string]*session.Session
}

// NewOrchestrator wires the operations to a registry and a hub. sets may be nil,
// in which case every named set is unknown.
func NewOrchestrator(registry *session.Registry, hub Hub, sets SetLoader) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		hub:      hub,
		sets:     sets,
		hosting:  make(map[string]map[string]*session.Session),
		joined:   make(map[string]map[string]*session.Session),
	}
}

// CreateSession registers a new session hosted by connID. It never fails.
func (o *Orchestrator) CreateSession(connID string) CreateSessionReply {
	s := o.registry.Create(connID)
	o.hub.Subscribe(s.Code, connID)
	o.track(o.hosting, connID, s)

	return CreateSessionReply{OK: true, Code: s.Code, SessionID: s.ID}
}

// StartSession loads the questions of a session, either inline or from the set
// library, and opens the first one.
func (o *Orchestrator) StartSession(connID string, req StartSessionRequest) error {
	s, err := o.lookup(req.Code)
	if err != nil {
		return err
	}

	questions := req.Questions
	if req.QuestionSet != "" {
		// refuse before touching the library so a non-host learns nothing
		if !s.IsHost(connID) {
			return quizerr.ErrNotHost
		}
		if o.sets == nil {
			return quizerr.UnknownSet(req.QuestionSet)
		}
		set, err := o.sets.Load(req.QuestionSet)
		if err != nil {
			return err
		}
		questions = set.Questions
	}

	return s.Start(connID, questions)
}

// AdvanceQuestion is the host's manual move to the next question.
func (o *Orchestrator) AdvanceQuestion(connID string, req AdvanceQuestionRequest) error {
	s, err := o.lookup(req.Code)
	if err != nil {
		return err
	}
	return s.Advance(connID)
}

// JoinSession adds connID as a participant and subscribes it to the session's broadcasts.
func (o *Orchestrator) JoinSession(connID string, req JoinSessionRequest) (JoinSessionReply, error) {
	s, err := o.lookup(req.Code)
	if err != nil {
		return JoinSessionReply{}, err
	}

	// subscribe first so the joiner sees its own join broadcast
	o.hub.Subscribe(s.Code, connID)
	p, created := s.Join(connID, req.Name)

	// The session may have been torn down since the lookup. Checking under o.mu
	// orders this against forget: either the entry is recorded before teardown
	// sweeps it, or the join is undone here.
	if !o.trackIfRegistered(o.joined, connID, s) {
		if created {
			s.RemoveParticipant(connID)
		}
		o.hub.Unsubscribe(s.Code, connID)
		return JoinSessionReply{}, quizerr.ErrNotFound
	}

	return JoinSessionReply{OK: true, ParticipantID: p.ID, Code: s.Code}, nil
}

// SubmitAnswer scores connID's answer to the active question.
func (o *Orchestrator) SubmitAnswer(connID string, req SubmitAnswerRequest) (SubmitAnswerReply, error) {
	s, err := o.lookup(req.Code)
	if err != nil {
		return SubmitAnswerReply{}, err
	}
	res, err := s.SubmitAnswer(connID, req.Answer)
	if err != nil {
		return SubmitAnswerReply{}, err
	}
	return SubmitAnswerReply{
		OK:            true,
		Correct:       res.Correct,
		Gained:        res.Gained,
		Penalty:       res.Penalty,
		CorrectAnswer: res.CorrectAnswer,
		Streak:        res.Streak,
	}, nil
}

// Disconnect ends every session connID hosts and removes connID from every
// session it joined.
func (o *Orchestrator) Disconnect(connID string) {
	o.mu.Lock()
	hosted := o.hosting[connID]
	joined := o.joined[connID]
	delete(o.hosting, connID)
	delete(o.joined, connID)
	o.mu.Unlock()

	for _, s := range hosted {
		o.terminate(s, events.EndReasonHostLeft)
	}

	for code, s := range joined {
		if _, ended := hosted[code]; ended {
			continue
		}
		if current, ok := o.registry.Get(code); ok && current == s {
			s.RemoveParticipant(connID)
		}
		o.hub.Unsubscribe(code, connID)
	}

	if len(hosted) > 0 || len(joined) > 0 {
		log.Info().
			Str("conn_id", connID).
			Int("hosted", len(hosted)).
			Int("joined", len(joined)).
			Msg("connection released")
	}
}

// Snapshot returns the public state of the session registered under code.
func (o *Orchestrator) Snapshot(code string) (session.Snapshot, error) {
	s, err := o.lookup(code)
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Stats reports registry and connection tracking sizes.
type Stats struct {
	Sessions        int `json:"sessions"`
	HostConnections int `json:"hostConnections"`
	PlayConnections int `json:"playConnections"`
}

func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		Sessions:        o.registry.Len(),
		HostConnections: len(o.hosting),
		PlayConnections: len(o.joined),
	}
}

// terminate ends s with reason, deregisters it, closes its room and forgets every
// connection's reference to it.
func (o *Orchestrator) terminate(s *session.Session, reason string) {
	s.End(reason)
	o.teardown(s)
}

// teardown releases an ended session: registry entry, room and connection indexes.
func (o *Orchestrator) teardown(s *session.Session) {
	o.registry.RemoveSession(s)
	o.hub.DropRoom(s.Code)
	o.forget(s)
}

func (o *Orchestrator) lookup(code string) (*session.Session, error) {
	s, ok := o.registry.Get(code)
	if !ok {
		return nil, quizerr.ErrNotFound
	}
	return s, nil
}

func (o *Orchestrator) track(index map[string]map[string]*session.Session, connID string, s *session.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trackLocked(index, connID, s)
}

// trackIfRegistered records s for connID only while s is still the registered
// session for its code.
func (o *Orchestrator) trackIfRegistered(index map[string]map[string]*session.Session, connID string, s *session.Session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.registry.Get(s.Code); !ok || current != s {
		return false
	}
	o.trackLocked(index, connID, s)
	return true
}

func (o *Orchestrator) trackLocked(index map[string]map[string]*session.Session, connID string, s *session.Session) {
	byCode, ok := index[connID]
	if !ok {
		byCode = make(map[string]*session.Session)
		index[connID] = byCode
	}
	byCode[s.Code] = s
}

func (o *Orchestrator) forget(s *session.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, index := range []map[string]map[string]*session.Session{o.hosting, o.joined} {
		for connID, byCode := range index {
			if byCode[s.Code] == s {
				delete(byCode, s.Code)
				if len(byCode) == 0 {
					delete(index, connID)
				}
			}
		}
	}
}
