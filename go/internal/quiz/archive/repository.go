package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/quizlive/go/internal/models"
	"github.com/mcdev12/quizlive/go/internal/quiz/session"
	"github.com/mcdev12/quizlive/go/internal/sqlutil"
)

// ErrNotArchived is returned by LoadRun for unknown ids.
var ErrNotArchived = errors.New("session not archived")

// Record is one archived run of a session with its final standings, best first.
type Record struct {
	RunID         string
	SessionID     string
	Code          string
	EndReason     string
	QuestionCount int
	StartedAt     *time.Time
	EndedAt       time.Time
	Results       []Result
}

type Result struct {
	ParticipantID string
	Name          string
	Rank          int
	Score         int
	LastAnswer    *models.LastAnswer
}

// Repository writes archive rows with database/sql over lib/pq.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// queries binds the archive statements to one transaction.
type queries struct {
	tx *sql.Tx
}

func newQueries(tx *sql.Tx) *queries {
	return &queries{tx: tx}
}

// SaveSummary stores a finished run and its leaderboard in one transaction.
// Saving the same run twice is a no-op.
func (r *Repository) SaveSummary(ctx context.Context, summary session.Summary) error {
	board, err := sqlutil.ToNullJSON(summary.Leaderboard)
	if err != nil {
		return fmt.Errorf("failed to encode leaderboard: %w", err)
	}

	return sqlutil.Run(ctx, r.db, newQueries, func(q *queries) error {
		inserted, err := q.insertSession(ctx, summary, board)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		for i, entry := range summary.Leaderboard {
			if err := q.insertResult(ctx, summary.RunID, i+1, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func (q *queries) insertSession(ctx context.Context, summary session.Summary, board pqtype.NullRawMessage) (bool, error) {
	res, err := q.tx.ExecContext(ctx, `
		INSERT INTO quiz_sessions (run_id, session_id, code, end_reason, question_count, started_at, ended_at, leaderboard)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO NOTHING`,
		summary.RunID,
		summary.SessionID,
		summary.Code,
		summary.Reason,
		summary.QuestionCount,
		sqlutil.ToSqlTime(summary.StartedAt),
		summary.EndedAt,
		board,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert quiz session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func (q *queries) insertResult(ctx context.Context, runID string, rank int, entry models.LeaderboardEntry) error {
	lastAnswer, err := sqlutil.ToNullJSON(entry.LastAnswer)
	if err != nil {
		return fmt.Errorf("failed to encode last answer: %w", err)
	}

	_, err = q.tx.ExecContext(ctx, `
		INSERT INTO quiz_results (run_id, participant_id, name, rank, score, last_answer)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		runID, entry.ID, entry.Name, rank, entry.Score, lastAnswer,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quiz result: %w", err)
	}
	return nil
}

// LoadRun reads an archived run back.
func (r *Repository) LoadRun(ctx context.Context, runID string) (*Record, error) {
	rec := &Record{RunID: runID}
	var startedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, code, end_reason, question_count, started_at, ended_at
		FROM quiz_sessions WHERE run_id = $1`, runID,
	).Scan(&rec.SessionID, &rec.Code, &rec.EndReason, &rec.QuestionCount, &startedAt, &rec.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotArchived
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz session: %w", err)
	}
	rec.StartedAt = sqlutil.FromSqlTime(startedAt)

	rows, err := r.db.QueryContext(ctx, `
		SELECT participant_id, name, rank, score, last_answer
		FROM quiz_results WHERE run_id = $1 ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var res Result
		var lastAnswer pqtype.NullRawMessage
		if err := rows.Scan(&res.ParticipantID, &res.Name, &res.Rank, &res.Score, &lastAnswer); err != nil {
			return nil, fmt.Errorf("failed to scan quiz result: %w", err)
		}
		var last models.LastAnswer
		set, err := sqlutil.FromNullJSON(lastAnswer, &last)
		if err != nil {
			return nil, fmt.Errorf("failed to decode last answer: %w", err)
		}
		if set {
			res.LastAnswer = &last
		}
		rec.Results = append(rec.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quiz results: %w", err)
	}
	return rec, nil
}

// Health pings the database.
func (r *Repository) Health(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
