package orchestrator

import (
	"encoding/json"

	"github.com/mcdev12/quizlive/go/internal/models"
	"github.com/mcdev12/quizlive/go/internal/quiz/quizerr"
)

// Operation names carried in the type field of client frames
const (
	OpCreateSession   = "create-session"
	OpStartSession    = "start-session"
	OpAdvanceQuestion = "advance-question"
	OpJoinSession     = "join-session"
	OpSubmitAnswer    = "submit-answer"
)

// FrameTypeReply marks the unicast answer to a client frame.
const FrameTypeReply = "reply"

// Frame is a client request. Ref is echoed back on the reply.
type Frame struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ReplyFrame wraps the reply object of one client frame.
type ReplyFrame struct {
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`
	Data any    `json:"data"`
}

type StartSessionRequest struct {
	Code        string                 `json:"code"`
	Questions   []models.QuestionInput `json:"questions"`
	QuestionSet string                 `json:"questionSet,omitempty"`
}

type AdvanceQuestionRequest struct {
	Code string `json:"code"`
}

type JoinSessionRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type SubmitAnswerRequest struct {
	Code   string `json:"code"`
	Answer string `json:"answer"`
}

// OKReply is the reply of operations that only report success.
type OKReply struct {
	OK bool `json:"ok"`
}

type CreateSessionReply struct {
	OK        bool   `json:"ok"`
	Code      string `json:"code"`
	SessionID string `json:"sessionId"`
}

type JoinSessionReply struct {
	OK            bool   `json:"ok"`
	ParticipantID string `json:"participantId"`
	Code          string `json:"code"`
}

type SubmitAnswerReply struct {
	OK            bool   `json:"ok"`
	Correct       bool   `json:"correct"`
	Gained        int    `json:"gained"`
	Penalty       int    `json:"penalty"`
	CorrectAnswer string `json:"correctAnswer"`
	Streak        int    `json:"streak"`
}

// FailureReply is sent for every refused operation.
type FailureReply struct {
	OK      bool         `json:"ok"`
	Reason  quizerr.Code `json:"reason"`
	Message string       `json:"message,omitempty"`
}

func failure(err error) FailureReply {
	reply := FailureReply{Reason: quizerr.CodeOf(err)}
	if reply.Reason == quizerr.CodeBadRequest || reply.Reason == quizerr.CodeUnknownSet {
		reply.Message = err.Error()
	}
	return reply
}
