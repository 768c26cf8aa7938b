package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQuestionDuration applies to questions uploaded without a duration.
const DefaultQuestionDuration = 15 * time.Second

// MaxParticipantNameLength is the rune limit for display names.
const MaxParticipantNameLength = 40

// Question is one entry of a session's question list. Answer is never sent to players
// before they have answered.
type Question struct {
	ID       string        `json:"id" yaml:"id"`
	Prompt   string        `json:"prompt" yaml:"prompt"`
	Options  []string      `json:"options" yaml:"options"`
	Answer   string        `json:"answer" yaml:"answer"`
	Duration time.Duration `json:"-" yaml:"-"`
}

// QuestionInput is the host-supplied shape of a question. ID and DurationMs are optional.
type QuestionInput struct {
	ID         string   `json:"id,omitempty" yaml:"id,omitempty"`
	Prompt     string   `json:"prompt" yaml:"prompt"`
	Options    []string `json:"options" yaml:"options"`
	Answer     string   `json:"answer" yaml:"answer"`
	DurationMs int64    `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Normalize turns a host-supplied question into a Question, filling a generated id
// and the fallback duration when either is missing.
func (in QuestionInput) Normalize(fallback time.Duration) Question {
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	d := time.Duration(in.DurationMs) * time.Millisecond
	if d <= 0 {
		d = fallback
	}
	options := make([]string, len(in.Options))
	copy(options, in.Options)
	return Question{
		ID:       id,
		Prompt:   in.Prompt,
		Options:  options,
		Answer:   in.Answer,
		Duration: d,
	}
}

// LastAnswer records the most recent scored answer of a participant.
type LastAnswer struct {
	QuestionID  string `json:"qid"`
	Correct     bool   `json:"correct"`
	Gained      int    `json:"gained"`
	Penalty     int    `json:"penalty"`
	TimeBonus   int    `json:"timeBonus"`
	StreakBonus int    `json:"streakBonus"`
}

// Participant is a player joined to a session through one connection.
type Participant struct {
	ID         string      `json:"id"`
	ConnID     string      `json:"-"`
	Name       string      `json:"name"`
	Score      int         `json:"score"`
	Streak     int         `json:"streak"`
	LastAnswer *LastAnswer `json:"lastAnswer"`
	JoinedAt   time.Time   `json:"joinedAt"`
}

// LeaderboardEntry is the public view of a participant in a leaderboard broadcast.
type LeaderboardEntry struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Score      int         `json:"score"`
	LastAnswer *LastAnswer `json:"lastAnswer"`
}
