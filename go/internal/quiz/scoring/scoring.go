// Package scoring computes the points a participant earns or loses for one answer.
//
// A correct answer is worth a fixed base, a bonus proportional to the time left
// before the deadline, and a bonus for the running streak of correct answers. An
// incorrect answer forfeits the streak value it would have extended.
package scoring

import (
	"time"

	"github.com/mcdev12/quizlive/go/internal/models"
	"github.com/mcdev12/quizlive/go/internal/quiz/quizerr"
)

const (
	BasePoints   = 1000
	MaxTimeBonus = 500
	StreakStep   = 100
)

// Round is the part of a session's state an answer is scored against.
type Round struct {
	// Question is nil when no question is active.
	Question *models.Question
	Deadline time.Time
}

// Result describes the outcome of one submission.
type Result struct {
	Accepted      bool         `json:"-"`
	Reason        quizerr.Code `json:"-"`
	Correct       bool         `json:"correct"`
	Gained        int          `json:"gained"`
	Penalty       int          `json:"penalty"`
	TimeBonus     int          `json:"timeBonus"`
	StreakBonus   int          `json:"streakBonus"`
	CorrectAnswer string       `json:"correctAnswer"`
	Streak        int          `json:"streak"`
}

// Err returns the refusal as an error, or nil for an accepted answer.
func (r Result) Err() error {
	if r.Accepted {
		return nil
	}
	return &quizerr.Error{Code: r.Reason}
}

// ScoreAnswer checks and scores one submission, mutating only p.
//
// Checks run in order and the first failure wins: an active question, no earlier
// answer to the same question, and now no later than the deadline. Duplicate and
// late submissions break the streak but leave the score untouched.
func ScoreAnswer(round Round, p *models.Participant, submitted string, now time.Time) Result {
	q := round.Question
	if q == nil {
		return Result{Reason: quizerr.CodeNoQuestion, Streak: p.Streak}
	}
	if p.LastAnswer != nil && p.LastAnswer.QuestionID == q.ID {
		p.Streak = 0
		return Result{Reason: quizerr.CodeAlreadyAnswered}
	}
	if now.After(round.Deadline) {
		p.Streak = 0
		return Result{Reason: quizerr.CodeTooLate}
	}

	if submitted == q.Answer {
		p.Streak++
		timeBonus := TimeBonus(round.Deadline.Sub(now), q.Duration)
		streakBonus := p.Streak * StreakStep
		gained := BasePoints + timeBonus + streakBonus
		p.Score += gained
		p.LastAnswer = &models.LastAnswer{
			QuestionID:  q.ID,
			Correct:     true,
			Gained:      gained,
			TimeBonus:   timeBonus,
			StreakBonus: streakBonus,
		}
		return Result{
			Accepted:      true,
			Correct:       true,
			Gained:        gained,
			TimeBonus:     timeBonus,
			StreakBonus:   streakBonus,
			CorrectAnswer: q.Answer,
			Streak:        p.Streak,
		}
	}

	penalty := StreakPenalty(p.Streak)
	p.Score -= penalty
	if p.Score < 0 {
		p.Score = 0
	}
	p.Streak = 0
	p.LastAnswer = &models.LastAnswer{
		QuestionID: q.ID,
		Penalty:    penalty,
	}
	return Result{
		Accepted:      true,
		Penalty:       penalty,
		CorrectAnswer: q.Answer,
	}
}

// TimeBonus is floor(remaining / duration * MaxTimeBonus), clamped to [0, MaxTimeBonus].
func TimeBonus(remaining, duration time.Duration) int {
	if remaining <= 0 || duration <= 0 {
		return 0
	}
	if remaining >= duration {
		return MaxTimeBonus
	}
	return int(int64(remaining) * MaxTimeBonus / int64(duration))
}

// StreakPenalty is what a miss costs after a run of streak correct answers.
func StreakPenalty(streak int) int {
	if streak <= 0 {
		return 0
	}
	return streak * StreakStep
}
