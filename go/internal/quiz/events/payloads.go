package events

import "github.com/mcdev12/quizlive/go/internal/models"

// Session end reasons
const (
	EndReasonDone     = "done"
	EndReasonHostLeft = "host-left"
	EndReasonIdle     = "idle"
)

// QuestionPayload announces a new question. It never carries the answer.
type QuestionPayload struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	Options    []string `json:"options"`
	Deadline   int64    `json:"deadline"` // unix milliseconds
	DurationMs int64    `json:"durationMs"`
	Index      int      `json:"index"`
	Total      int      `json:"total"`
}

// LeaderboardPayload is the full ranking, highest score first
type LeaderboardPayload struct {
	Entries []models.LeaderboardEntry `json:"entries"`
}

// SessionEndPayload is the terminal event of a session
type SessionEndPayload struct {
	Reason string `json:"reason"`
}

// ParticipantJoinedPayload announces a new participant
type ParticipantJoinedPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
