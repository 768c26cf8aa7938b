package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/quiz/quizerr"
)

// HandleMessage decodes one client frame, runs the operation it names and returns
// the encoded reply. Every frame gets exactly one reply.
func (o *Orchestrator) HandleMessage(connID string, raw []byte) []byte {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return encodeReply("", failure(quizerr.BadRequest("malformed frame")))
	}

	log.Debug().
		Str("conn_id", connID).
		Str("op", frame.Type).
		Str("ref", frame.Ref).
		Msg("handling client frame")

	data, err := o.dispatch(connID, frame)
	if err != nil {
		log.Debug().
			Str("conn_id", connID).
			Str("op", frame.Type).
			Str("reason", string(quizerr.CodeOf(err))).
			Msg("operation refused")
		if quizerr.CodeOf(err) == quizerr.CodeInternal {
			log.Error().Err(err).Str("conn_id", connID).Str("op", frame.Type).Msg("operation failed")
		}
		return encodeReply(frame.Ref, failure(err))
	}
	return encodeReply(frame.Ref, data)
}

func (o *Orchestrator) dispatch(connID string, frame Frame) (any, error) {
	switch frame.Type {
	case OpCreateSession:
		return o.CreateSession(connID), nil

	case OpStartSession:
		var req StartSessionRequest
		if err := decodeData(frame, &req); err != nil {
			return nil, err
		}
		if err := o.StartSession(connID, req); err != nil {
			return nil, err
		}
		return OKReply{OK: true}, nil

	case OpAdvanceQuestion:
		var req AdvanceQuestionRequest
		if err := decodeData(frame, &req); err != nil {
			return nil, err
		}
		if err := o.AdvanceQuestion(connID, req); err != nil {
			return nil, err
		}
		return OKReply{OK: true}, nil

	case OpJoinSession:
		var req JoinSessionRequest
		if err := decodeData(frame, &req); err != nil {
			return nil, err
		}
		return o.JoinSession(connID, req)

	case OpSubmitAnswer:
		var req SubmitAnswerRequest
		if err := decodeData(frame, &req); err != nil {
			return nil, err
		}
		return o.SubmitAnswer(connID, req)

	default:
		return nil, quizerr.BadRequest(fmt.Sprintf("unknown operation %q", frame.Type))
	}
}

func decodeData(frame Frame, v any) error {
	if len(frame.Data) == 0 {
		return quizerr.BadRequest(frame.Type + " requires data")
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return quizerr.Wrap(quizerr.CodeBadRequest, "invalid "+frame.Type+" data", err)
	}
	return nil
}

func encodeReply(ref string, data any) []byte {
	out, err := json.Marshal(ReplyFrame{Type: FrameTypeReply, Ref: ref, Data: data})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal reply")
		out, _ = json.Marshal(ReplyFrame{Type: FrameTypeReply, Ref: ref, Data: FailureReply{Reason: quizerr.CodeInternal}})
	}
	return out
}
