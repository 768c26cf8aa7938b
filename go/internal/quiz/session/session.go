package session

import (
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/models"
	"github.com/mcdev12/quizlive/go/internal/quiz/events"
	"github.com/mcdev12/quizlive/go/internal/quiz/quizerr"
	"github.com/mcdev12/quizlive/go/internal/quiz/scoring"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// DefaultTimerGrace keeps the auto-advance from firing before an answer stamped
// exactly at the deadline has been scored.
const DefaultTimerGrace = 50 * time.Millisecond

const defaultParticipantName = "Player"

// State is the coarse position of a session in its lifecycle
type State string

const (
	StateNotStarted State = "not-started"
	StateInQuestion State = "in-question"
	StateEnded      State = "ended"
)

// Summary is handed to Options.OnEnded when a session reaches its ended state.
type Summary struct {
	SessionID     string
	RunID         string
	Code          string
	HostConnID    string
	Reason        string
	QuestionCount int
	StartedAt     *time.Time
	EndedAt       time.Time
	Leaderboard   []models.LeaderboardEntry
}

// Options configures every session created by a Registry.
type Options struct {
	Clock           Clock
	Broadcaster     events.Broadcaster
	DefaultDuration time.Duration
	TimerGrace      time.Duration
	// OnEnded is called with the session lock held; it must not block.
	OnEnded func(Summary)
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Broadcaster == nil {
		o.Broadcaster = events.BroadcasterFunc(func(string, *events.Event) {})
	}
	if o.DefaultDuration <= 0 {
		o.DefaultDuration = models.DefaultQuestionDuration
	}
	if o.TimerGrace < 0 {
		o.TimerGrace = 0
	}
	return o
}

// armedTimer is the single pending auto-advance of a session.
type armedTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
}

// Session is one running quiz. All mutation happens under mu, including the
// timer-driven advance, so check-then-mutate sequences never interleave.
type Session struct {
	ID         string
	Code       string
	HostConnID string
	CreatedAt  time.Time

	opts Options

	mu           sync.Mutex
	runID        string
	questions    []models.Question
	index        int
	deadline     *time.Time
	participants map[string]*models.Participant
	joinOrder    []*models.Participant
	timer        *armedTimer
	terminated   bool
	startedAt    *time.Time
	lastActivity time.Time
}

func newSession(code, hostConnID string, opts Options) *Session {
	now := opts.Clock.Now()
	return &Session{
		ID:           uuid.New().String(),
		Code:         code,
		HostConnID:   hostConnID,
		CreatedAt:    now,
		opts:         opts,
		runID:        uuid.New().String(),
		index:        -1,
		participants: make(map[string]*models.Participant),
		lastActivity: now,
	}
}

// IsHost reports whether connID created this session.
func (s *Session) IsHost(connID string) bool {
	return s.HostConnID == connID
}

// Start replaces the question list and moves straight to the first question.
func (s *Session) Start(connID string, inputs []models.QuestionInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsHost(connID) {
		return quizerr.ErrNotHost
	}
	if s.terminated {
		return quizerr.ErrEnded
	}

	s.cancelTimerLocked()
	// a start begins a new run; nobody carries answers or points over
	restarted := s.startedAt != nil
	if restarted {
		s.runID = uuid.New().String()
	}
	for _, p := range s.joinOrder {
		p.Score = 0
		p.Streak = 0
		p.LastAnswer = nil
	}
	if restarted && len(s.joinOrder) > 0 {
		s.broadcastLeaderboardLocked()
	}

	questions := make([]models.Question, len(inputs))
	for i, in := range inputs {
		questions[i] = in.Normalize(s.opts.DefaultDuration)
	}
	s.questions = questions
	s.index = -1
	s.deadline = nil
	now := s.opts.Clock.Now()
	s.startedAt = &now
	s.touchLocked()

	log.Info().
		Str("session_code", s.Code).
		Str("run_id", s.runID).
		Int("questions", len(questions)).
		Msg("session started")

	s.advanceLocked()
	return nil
}

// Advance is the host-triggered move to the next question. Moving past the last
// question ends the session and reports quizerr.ErrNoMore.
func (s *Session) Advance(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsHost(connID) {
		return quizerr.ErrNotHost
	}
	s.touchLocked()
	if !s.advanceLocked() {
		return quizerr.ErrNoMore
	}
	return nil
}

// End stops the session for good with the given reason. It is safe to call more than once.
func (s *Session) End(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(reason)
}

// EndIfIdle ends the session with reason only if it has seen no activity for ttl
// as of now. The check and the end happen under one lock hold, so an operation
// that lands first keeps the session alive. It reports whether it ended the session.
func (s *Session) EndIfIdle(now time.Time, ttl time.Duration, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated || now.Sub(s.lastActivity) < ttl {
		return false
	}
	s.endLocked(reason)
	return true
}

func (s *Session) endLocked(reason string) {
	if s.terminated {
		return
	}
	wasEnded := s.endedLocked()
	s.cancelTimerLocked()
	s.terminated = true
	s.index = len(s.questions)
	s.deadline = nil

	log.Info().
		Str("session_code", s.Code).
		Str("reason", reason).
		Msg("session terminated")

	s.broadcastLocked(events.EventTypeSessionEnd, events.SessionEndPayload{Reason: reason})
	if !wasEnded {
		s.notifyEndedLocked(reason)
	}
}

// Join adds a participant for connID. A connection that already joined gets its
// existing participant back and created is false.
func (s *Session) Join(connID, name string) (p models.Participant, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLocked()
	if existing, ok := s.participants[connID]; ok {
		return *existing, false
	}

	participant := &models.Participant{
		ID:       uuid.New().String(),
		ConnID:   connID,
		Name:     truncateName(name),
		JoinedAt: s.opts.Clock.Now(),
	}
	s.participants[connID] = participant
	s.joinOrder = append(s.joinOrder, participant)

	log.Info().
		Str("session_code", s.Code).
		Str("participant_id", participant.ID).
		Int("participants", len(s.joinOrder)).
		Msg("participant joined")

	s.broadcastLocked(events.EventTypeParticipantJoined, events.ParticipantJoinedPayload{
		ID:   participant.ID,
		Name: participant.Name,
	})
	s.broadcastLeaderboardLocked()
	return *participant, true
}

// RemoveParticipant drops the participant bound to connID, if any.
func (s *Session) RemoveParticipant(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[connID]
	if !ok {
		return false
	}
	delete(s.participants, connID)
	for i, candidate := range s.joinOrder {
		if candidate == p {
			s.joinOrder = append(s.joinOrder[:i], s.joinOrder[i+1:]...)
			break
		}
	}
	s.touchLocked()

	log.Info().
		Str("session_code", s.Code).
		Str("participant_id", p.ID).
		Msg("participant left")

	s.broadcastLeaderboardLocked()
	return true
}

// SubmitAnswer scores an answer from connID against the active question. Refusals
// come back as *quizerr.Error alongside the result that carries the same reason.
func (s *Session) SubmitAnswer(connID, answer string) (scoring.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[connID]
	if !ok {
		return scoring.Result{Reason: quizerr.CodeNotJoined}, quizerr.ErrNotJoined
	}
	s.touchLocked()

	res := scoring.ScoreAnswer(s.roundLocked(), p, answer, s.opts.Clock.Now())
	if !res.Accepted {
		log.Debug().
			Str("session_code", s.Code).
			Str("participant_id", p.ID).
			Str("reason", string(res.Reason)).
			Msg("answer rejected")
		return res, res.Err()
	}

	log.Debug().
		Str("session_code", s.Code).
		Str("participant_id", p.ID).
		Bool("correct", res.Correct).
		Int("gained", res.Gained).
		Int("penalty", res.Penalty).
		Msg("answer scored")

	s.broadcastLeaderboardLocked()
	return res, nil
}

// Leaderboard returns participants ordered by score, highest first. Equal scores
// keep join order.
func (s *Session) Leaderboard() []models.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked()
}

// Participant returns a copy of the participant bound to connID.
func (s *Session) Participant(connID string) (models.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[connID]
	if !ok {
		return models.Participant{}, false
	}
	return *p, true
}

// Snapshot is a read-only view of a session that never exposes answers.
type Snapshot struct {
	SessionID    string                    `json:"sessionId"`
	RunID        string                    `json:"runId"`
	Code         string                    `json:"code"`
	State        State                     `json:"state"`
	Index        int                       `json:"index"`
	Total        int                       `json:"total"`
	Deadline     *time.Time                `json:"deadline,omitempty"`
	Participants int                       `json:"participants"`
	Leaderboard  []models.LeaderboardEntry `json:"leaderboard"`
	CreatedAt    time.Time                 `json:"createdAt"`
	LastActivity time.Time                 `json:"lastActivity"`
}

// Snapshot returns the current public state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deadline *time.Time
	if s.deadline != nil {
		d := *s.deadline
		deadline = &d
	}
	return Snapshot{
		SessionID:    s.ID,
		RunID:        s.runID,
		Code:         s.Code,
		State:        s.stateLocked(),
		Index:        s.index,
		Total:        len(s.questions),
		Deadline:     deadline,
		Participants: len(s.joinOrder),
		Leaderboard:  s.leaderboardLocked(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// IdleSince reports when the session last saw any operation.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// advanceLocked moves the cursor forward one question. It returns false when the
// session is, or has just become, ended.
func (s *Session) advanceLocked() bool {
	s.cancelTimerLocked()

	if s.terminated || s.endedLocked() {
		return false
	}

	s.index++
	if s.index >= len(s.questions) {
		s.index = len(s.questions)
		s.deadline = nil
		log.Info().
			Str("session_code", s.Code).
			Int("questions", len(s.questions)).
			Msg("session finished")
		s.broadcastLocked(events.EventTypeSessionEnd, events.SessionEndPayload{Reason: events.EndReasonDone})
		s.notifyEndedLocked(events.EndReasonDone)
		return false
	}

	q := s.questions[s.index]
	deadline := s.opts.Clock.Now().Add(q.Duration)
	s.deadline = &deadline

	log.Info().
		Str("session_code", s.Code).
		Int("question_index", s.index).
		Str("question_id", q.ID).
		Time("deadline", deadline).
		Msg("question opened")

	s.broadcastLocked(events.EventTypeQuestion, events.QuestionPayload{
		ID:         q.ID,
		Prompt:     q.Prompt,
		Options:    q.Options,
		Deadline:   deadline.UnixMilli(),
		DurationMs: q.Duration.Milliseconds(),
		Index:      s.index,
		Total:      len(s.questions),
	})
	s.armTimerLocked(q.Duration + s.opts.TimerGrace)
	return true
}

func (s *Session) endedLocked() bool {
	return s.index >= 0 && s.index >= len(s.questions)
}

func (s *Session) stateLocked() State {
	switch {
	case s.terminated || s.endedLocked():
		return StateEnded
	case s.index < 0:
		return StateNotStarted
	default:
		return StateInQuestion
	}
}

func (s *Session) roundLocked() scoring.Round {
	if s.terminated || s.index < 0 || s.index >= len(s.questions) || s.deadline == nil {
		return scoring.Round{}
	}
	return scoring.Round{Question: &s.questions[s.index], Deadline: *s.deadline}
}

func (s *Session) leaderboardLocked() []models.LeaderboardEntry {
	ranked := make([]*models.Participant, len(s.joinOrder))
	copy(ranked, s.joinOrder)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	entries := make([]models.LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		var last *models.LastAnswer
		if p.LastAnswer != nil {
			la := *p.LastAnswer
			last = &la
		}
		entries[i] = models.LeaderboardEntry{
			ID:         p.ID,
			Name:       p.Name,
			Score:      p.Score,
			LastAnswer: last,
		}
	}
	return entries
}

func (s *Session) broadcastLeaderboardLocked() {
	s.broadcastLocked(events.EventTypeLeaderboard, events.LeaderboardPayload{Entries: s.leaderboardLocked()})
}

func (s *Session) broadcastLocked(eventType events.EventType, payload any) {
	event, err := events.New(s.Code, eventType, s.opts.Clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("session_code", s.Code).Msg("failed to build event")
		return
	}
	s.opts.Broadcaster.Broadcast(s.Code, event)
}

func (s *Session) notifyEndedLocked(reason string) {
	if s.opts.OnEnded == nil {
		return
	}
	s.opts.OnEnded(Summary{
		SessionID:     s.ID,
		RunID:         s.runID,
		Code:          s.Code,
		HostConnID:    s.HostConnID,
		Reason:        reason,
		QuestionCount: len(s.questions),
		StartedAt:     s.startedAt,
		EndedAt:       s.opts.Clock.Now(),
		Leaderboard:   s.leaderboardLocked(),
	})
}

func (s *Session) touchLocked() {
	s.lastActivity = s.opts.Clock.Now()
}

func truncateName(name string) string {
	if name == "" {
		return defaultParticipantName
	}
	if utf8.RuneCountInString(name) <= models.MaxParticipantNameLength {
		return name
	}
	runes := []rune(name)
	return string(runes[:models.MaxParticipantNameLength])
}
