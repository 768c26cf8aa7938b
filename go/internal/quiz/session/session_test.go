package session

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizlive/go/internal/models"
	"github.com/mcdev12/quizlive/go/internal/quiz/events"
	"github.com/mcdev12/quizlive/go/internal/quiz/quizerr"
)

const host = "conn-host"

var epoch = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Broadcast(code string, event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) ofType(t events.EventType) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) last(t events.EventType) *events.Event {
	all := r.ofType(t)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

type harness struct {
	clock    *clockwork.FakeClock
	rec      *recorder
	registry *Registry
	ended    chan Summary
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: clockwork.NewFakeClockAt(epoch),
		rec:   &recorder{},
		ended: make(chan Summary, 8),
	}
	h.registry = NewRegistry(Options{
		Clock:       h.clock,
		Broadcaster: h.rec,
		TimerGrace:  DefaultTimerGrace,
		OnEnded:     func(s Summary) { h.ended <- s },
	}, nil)
	return h
}

func question(id, answer string, durationMs int64) models.QuestionInput {
	return models.QuestionInput{
		ID:         id,
		Prompt:     "Say " + answer,
		Options:    []string{"Hello", "Bye"},
		Answer:     answer,
		DurationMs: durationMs,
	}
}

func decodePayload[T any](t *testing.T, e *events.Event) T {
	t.Helper()
	require.NotNil(t, e)
	payload, err := events.ParsePayload(e)
	require.NoError(t, err)
	typed, ok := payload.(T)
	require.True(t, ok, "unexpected payload %T", payload)
	return typed
}

func decodeQuestion(t *testing.T, e *events.Event) events.QuestionPayload {
	t.Helper()
	return decodePayload[events.QuestionPayload](t, e)
}

func decodeEnd(t *testing.T, e *events.Event) events.SessionEndPayload {
	t.Helper()
	return decodePayload[events.SessionEndPayload](t, e)
}

func decodeLeaderboard(t *testing.T, e *events.Event) events.LeaderboardPayload {
	t.Helper()
	return decodePayload[events.LeaderboardPayload](t, e)
}

func TestStart(t *testing.T) {
	t.Run("rejects a caller that is not the host", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)

		err := s.Start("someone-else", []models.QuestionInput{question("q1", "Hello", 15000)})
		assert.ErrorIs(t, err, quizerr.ErrNotHost)
		assert.Equal(t, StateNotStarted, s.State())
		assert.Empty(t, h.rec.ofType(events.EventTypeQuestion))
	})

	t.Run("opens the first question without revealing the answer", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)

		require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 15000), question("q2", "Bye", 15000)}))

		e := h.rec.last(events.EventTypeQuestion)
		require.NotNil(t, e)
		assert.NotContains(t, string(e.Data), "answer")
		p := decodeQuestion(t, e)
		assert.Equal(t, "q1", p.ID)
		assert.Equal(t, 0, p.Index)
		assert.Equal(t, 2, p.Total)
		assert.Equal(t, epoch.Add(15*time.Second).UnixMilli(), p.Deadline)
		assert.Equal(t, StateInQuestion, s.State())
		assert.True(t, s.hasPendingTimer())
	})

	t.Run("fills missing ids and durations", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)

		require.NoError(t, s.Start(host, []models.QuestionInput{{Prompt: "?", Options: []string{"a"}, Answer: "a"}}))

		p := decodeQuestion(t, h.rec.last(events.EventTypeQuestion))
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, int64(15000), p.DurationMs)
	})

	t.Run("an empty question list finishes immediately", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)

		require.NoError(t, s.Start(host, nil))
		assert.Equal(t, StateEnded, s.State())
		assert.Equal(t, events.EndReasonDone, decodeEnd(t, h.rec.last(events.EventTypeSessionEnd)).Reason)
	})
}

func TestScenarioA_ImmediateCorrectAnswer(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 15000)}))
	p, created := s.Join("conn-p1", "P1")
	require.True(t, created)

	res, err := s.SubmitAnswer("conn-p1", "Hello")
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, 1600, res.Gained)
	assert.Equal(t, 500, res.TimeBonus)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, "Hello", res.CorrectAnswer)

	board := decodeLeaderboard(t, h.rec.last(events.EventTypeLeaderboard))
	require.Len(t, board.Entries, 1)
	assert.Equal(t, p.ID, board.Entries[0].ID)
	assert.Equal(t, 1600, board.Entries[0].Score)
}

func TestScenarioB_MissAfterStreakOfTwo(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	require.NoError(t, s.Start(host, []models.QuestionInput{
		question("q1", "Hello", 10000),
		question("q2", "Hello", 10000),
		question("q3", "Hello", 10000),
	}))
	s.Join("conn-p1", "P1")

	_, err := s.SubmitAnswer("conn-p1", "Hello")
	require.NoError(t, err)
	require.NoError(t, s.Advance(host))
	res, err := s.SubmitAnswer("conn-p1", "Hello")
	require.NoError(t, err)
	require.Equal(t, 2, res.Streak)
	require.NoError(t, s.Advance(host))

	before, _ := s.Participant("conn-p1")
	res, err = s.SubmitAnswer("conn-p1", "Bye")
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, 200, res.Penalty)
	assert.Equal(t, 0, res.Gained)
	assert.Equal(t, 0, res.Streak)

	after, _ := s.Participant("conn-p1")
	assert.Equal(t, before.Score-200, after.Score)
	assert.Equal(t, 0, after.Streak)
}

func TestScenarioC_AnswerAfterDeadline(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 15000)}))
	s.Join("conn-p1", "P1")

	// Past the deadline but inside the timer grace, so the question is still open.
	h.clock.Advance(15*time.Second + time.Millisecond)

	res, err := s.SubmitAnswer("conn-p1", "Hello")
	assert.ErrorIs(t, err, quizerr.ErrTooLate)
	assert.Equal(t, quizerr.CodeTooLate, res.Reason)
	p, _ := s.Participant("conn-p1")
	assert.Equal(t, 0, p.Score)
}

func TestScenarioF_AutoAdvanceEndsSession(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 15000)}))

	h.clock.Advance(15*time.Second + DefaultTimerGrace)

	require.Eventually(t, func() bool { return s.State() == StateEnded }, time.Second, 5*time.Millisecond)
	end := h.rec.last(events.EventTypeSessionEnd)
	require.NotNil(t, end)
	assert.Equal(t, events.EndReasonDone, decodeEnd(t, end).Reason)
	assert.False(t, s.hasPendingTimer())

	select {
	case summary := <-h.ended:
		assert.Equal(t, events.EndReasonDone, summary.Reason)
		assert.Equal(t, 1, summary.QuestionCount)
	case <-time.After(time.Second):
		t.Fatal("OnEnded not called")
	}
}

func TestAutoAdvanceMovesToNextQuestion(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 10000), question("q2", "Bye", 20000)}))

	h.clock.Advance(10*time.Second + DefaultTimerGrace)

	require.Eventually(t, func() bool { return len(h.rec.ofType(events.EventTypeQuestion)) == 2 }, time.Second, 5*time.Millisecond)
	p := decodeQuestion(t, h.rec.last(events.EventTypeQuestion))
	assert.Equal(t, "q2", p.ID)
	assert.Equal(t, 1, p.Index)
	assert.True(t, s.hasPendingTimer())
}

func TestManualAdvanceReplacesTimer(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 10000), question("q2", "Bye", 60000)}))

	require.NoError(t, s.Advance(host))
	h.clock.Advance(10*time.Second + DefaultTimerGrace)
	time.Sleep(20 * time.Millisecond)

	assert.Len(t, h.rec.ofType(events.EventTypeQuestion), 2)
	assert.Empty(t, h.rec.ofType(events.EventTypeSessionEnd))
	assert.Equal(t, 1, s.Snapshot().Index)
}

func TestAdvance(t *testing.T) {
	t.Run("rejects a caller that is not the host", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)
		require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 10000)}))

		assert.ErrorIs(t, s.Advance("conn-p1"), quizerr.ErrNotHost)
		assert.Equal(t, 0, s.Snapshot().Index)
	})

	t.Run("past the last question ends once and reports no-more", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)
		require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 10000)}))

		assert.ErrorIs(t, s.Advance(host), quizerr.ErrNoMore)
		assert.ErrorIs(t, s.Advance(host), quizerr.ErrNoMore)

		assert.Len(t, h.rec.ofType(events.EventTypeSessionEnd), 1)
		snap := s.Snapshot()
		assert.Equal(t, 1, snap.Index)
		assert.Equal(t, StateEnded, snap.State)
		assert.Nil(t, snap.Deadline)
		assert.False(t, s.hasPendingTimer())
	})

	t.Run("a finished session can be started again", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)
		require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 10000)}))
		require.ErrorIs(t, s.Advance(host), quizerr.ErrNoMore)

		require.NoError(t, s.Start(host, []models.QuestionInput{question("q9", "Bye", 10000)}))
		assert.Equal(t, StateInQuestion, s.State())
		assert.Equal(t, "q9", decodeQuestion(t, h.rec.last(events.EventTypeQuestion)).ID)
	})
}

func TestRestartBeginsFreshRun(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	s.Join("conn-p1", "P1")

	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 15000)}))
	firstRun := s.Snapshot().RunID
	res, err := s.SubmitAnswer("conn-p1", "Hello")
	require.NoError(t, err)
	require.Equal(t, 1600, res.Gained)
	require.ErrorIs(t, s.Advance(host), quizerr.ErrNoMore)

	// same question id again in the new run
	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 15000)}))
	assert.NotEqual(t, firstRun, s.Snapshot().RunID)

	board := decodeLeaderboard(t, h.rec.last(events.EventTypeLeaderboard))
	require.Len(t, board.Entries, 1)
	assert.Equal(t, 0, board.Entries[0].Score)
	assert.Nil(t, board.Entries[0].LastAnswer)

	res, err = s.SubmitAnswer("conn-p1", "Hello")
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, 1600, res.Gained)
	assert.Equal(t, 1, res.Streak)

	_, err = s.SubmitAnswer("conn-p1", "Hello")
	assert.ErrorIs(t, err, quizerr.ErrAlreadyAnswered)

	require.ErrorIs(t, s.Advance(host), quizerr.ErrNoMore)

	require.Len(t, h.ended, 2)
	first, second := <-h.ended, <-h.ended
	assert.Equal(t, s.ID, first.SessionID)
	assert.Equal(t, s.ID, second.SessionID)
	assert.Equal(t, firstRun, first.RunID)
	assert.NotEqual(t, first.RunID, second.RunID)
	require.Len(t, second.Leaderboard, 1)
	assert.Equal(t, 1600, second.Leaderboard[0].Score)
}

func TestEndIfIdle(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 3*60*60*1000)}))

	h.clock.Advance(time.Hour)
	s.Join("conn-p1", "P1")

	assert.False(t, s.EndIfIdle(h.clock.Now(), time.Hour, events.EndReasonIdle))
	assert.Equal(t, StateInQuestion, s.State())

	h.clock.Advance(time.Hour)
	assert.True(t, s.EndIfIdle(h.clock.Now(), time.Hour, events.EndReasonIdle))
	assert.Equal(t, StateEnded, s.State())
	assert.Equal(t, events.EndReasonIdle, decodeEnd(t, h.rec.last(events.EventTypeSessionEnd)).Reason)

	assert.False(t, s.EndIfIdle(h.clock.Now(), time.Hour, events.EndReasonIdle), "already ended")
	assert.Len(t, h.rec.ofType(events.EventTypeSessionEnd), 1)
}

func TestEnd(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 10000), question("q2", "Bye", 10000)}))

	s.End(events.EndReasonHostLeft)
	s.End(events.EndReasonHostLeft)

	ends := h.rec.ofType(events.EventTypeSessionEnd)
	require.Len(t, ends, 1)
	assert.Equal(t, events.EndReasonHostLeft, decodeEnd(t, ends[0]).Reason)
	assert.False(t, s.hasPendingTimer())
	assert.Equal(t, StateEnded, s.State())
	assert.ErrorIs(t, s.Start(host, []models.QuestionInput{question("q3", "x", 1000)}), quizerr.ErrEnded)
	assert.ErrorIs(t, s.Advance(host), quizerr.ErrNoMore)

	h.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.rec.ofType(events.EventTypeQuestion), 1)

	require.Len(t, h.ended, 1)
	assert.Equal(t, events.EndReasonHostLeft, (<-h.ended).Reason)
}

func TestEndAfterDoneDoesNotSummarizeTwice(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 10000)}))
	require.ErrorIs(t, s.Advance(host), quizerr.ErrNoMore)

	s.End(events.EndReasonHostLeft)

	assert.Len(t, h.rec.ofType(events.EventTypeSessionEnd), 2)
	assert.Len(t, h.ended, 1)
}

func TestJoin(t *testing.T) {
	t.Run("broadcasts the join and a leaderboard", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)

		p, created := s.Join("conn-p1", "P1")
		require.True(t, created)
		assert.NotEmpty(t, p.ID)

		joined := h.rec.last(events.EventTypeParticipantJoined)
		require.NotNil(t, joined)
		var payload events.ParticipantJoinedPayload
		require.NoError(t, json.Unmarshal(joined.Data, &payload))
		assert.Equal(t, p.ID, payload.ID)
		assert.Equal(t, "P1", payload.Name)
		assert.Len(t, decodeLeaderboard(t, h.rec.last(events.EventTypeLeaderboard)).Entries, 1)
	})

	t.Run("same connection keeps a single participant", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)

		first, _ := s.Join("conn-p1", "P1")
		second, created := s.Join("conn-p1", "Other")
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, s.Leaderboard(), 1)
		assert.Len(t, h.rec.ofType(events.EventTypeParticipantJoined), 1)
	})

	t.Run("names are truncated to forty runes", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)

		p, _ := s.Join("conn-p1", strings.Repeat("é", 60))
		assert.Equal(t, strings.Repeat("é", 40), p.Name)

		q, _ := s.Join("conn-p2", "")
		assert.Equal(t, "Player", q.Name)
	})

	t.Run("joining an ended session is allowed", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)
		require.NoError(t, s.Start(host, nil))

		_, created := s.Join("conn-p1", "Late")
		assert.True(t, created)
	})
}

func TestScenarioD_TwoParticipantsLeaderboard(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)

	a, _ := s.Join("conn-a", "A")
	b, _ := s.Join("conn-b", "B")

	board := decodeLeaderboard(t, h.rec.last(events.EventTypeLeaderboard))
	require.Len(t, board.Entries, 2)
	assert.Equal(t, a.ID, board.Entries[0].ID, "equal scores keep join order")
	assert.Equal(t, b.ID, board.Entries[1].ID)
}

func TestLeaderboardOrdering(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 10000)}))

	s.Join("conn-a", "A")
	s.Join("conn-b", "B")
	s.Join("conn-c", "C")

	h.clock.Advance(5 * time.Second)
	_, err := s.SubmitAnswer("conn-c", "Hello")
	require.NoError(t, err)
	_, err = s.SubmitAnswer("conn-a", "Bye")
	require.NoError(t, err)

	board := s.Leaderboard()
	require.Len(t, board, 3)
	assert.Equal(t, "C", board[0].Name)
	assert.Equal(t, "A", board[1].Name)
	assert.Equal(t, "B", board[2].Name)
	for i := 1; i < len(board); i++ {
		assert.GreaterOrEqual(t, board[i-1].Score, board[i].Score)
	}
	require.NotNil(t, board[0].LastAnswer)
	assert.True(t, board[0].LastAnswer.Correct)
}

func TestRemoveParticipant(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	s.Join("conn-a", "A")
	s.Join("conn-b", "B")

	assert.True(t, s.RemoveParticipant("conn-a"))
	board := decodeLeaderboard(t, h.rec.last(events.EventTypeLeaderboard))
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "B", board.Entries[0].Name)

	before := len(h.rec.ofType(events.EventTypeLeaderboard))
	assert.False(t, s.RemoveParticipant("conn-a"))
	assert.Len(t, h.rec.ofType(events.EventTypeLeaderboard), before)
}

func TestSubmitAnswer(t *testing.T) {
	t.Run("unknown connection is not joined", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)
		require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 10000)}))

		_, err := s.SubmitAnswer("conn-x", "Hello")
		assert.ErrorIs(t, err, quizerr.ErrNotJoined)
	})

	t.Run("before start there is no question", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)
		s.Join("conn-p1", "P1")

		_, err := s.SubmitAnswer("conn-p1", "Hello")
		assert.ErrorIs(t, err, quizerr.ErrNoQuestion)
	})

	t.Run("second submission is refused without a score change", func(t *testing.T) {
		h := newHarness(t)
		s := h.registry.Create(host)
		require.NoError(t, s.Start(host, []models.QuestionInput{question("q1", "Hello", 10000)}))
		s.Join("conn-p1", "P1")

		_, err := s.SubmitAnswer("conn-p1", "Hello")
		require.NoError(t, err)
		boards := len(h.rec.ofType(events.EventTypeLeaderboard))
		first, _ := s.Participant("conn-p1")

		_, err = s.SubmitAnswer("conn-p1", "Hello")
		assert.ErrorIs(t, err, quizerr.ErrAlreadyAnswered)
		second, _ := s.Participant("conn-p1")
		assert.Equal(t, first.Score, second.Score)
		assert.Len(t, h.rec.ofType(events.EventTypeLeaderboard), boards, "refusals are not broadcast")
	})
}

func TestConcurrentAnswersAndAdvances(t *testing.T) {
	h := newHarness(t)
	s := h.registry.Create(host)
	inputs := make([]models.QuestionInput, 5)
	for i := range inputs {
		inputs[i] = question(string(rune('a'+i)), "Hello", 10000)
	}
	require.NoError(t, s.Start(host, inputs))

	const players = 20
	for i := 0; i < players; i++ {
		s.Join(connName(i), "P")
	}

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				answer := "Hello"
				if j%3 == 0 {
					answer = "Bye"
				}
				_, _ = s.SubmitAnswer(connName(i), answer)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 3; j++ {
			_ = s.Advance(host)
		}
	}()
	go h.clock.Advance(10*time.Second + DefaultTimerGrace)
	wg.Wait()

	// let a timer fired by the clock advance settle
	time.Sleep(50 * time.Millisecond)

	for _, entry := range s.Leaderboard() {
		assert.GreaterOrEqual(t, entry.Score, 0)
	}

	// Every question is announced at most once and in order.
	seen := -1
	for _, e := range h.rec.ofType(events.EventTypeQuestion) {
		p := decodeQuestion(t, e)
		assert.Equal(t, seen+1, p.Index)
		seen = p.Index
	}
}

func connName(i int) string {
	return "conn-" + string(rune('A'+i))
}
