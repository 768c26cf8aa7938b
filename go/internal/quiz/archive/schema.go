package archive

// Schema creates the archive tables. It is safe to apply more than once.
// One quiz_sessions row is written per run; a session started again yields a
// new run under the same session_id.
const Schema = `
CREATE TABLE IF NOT EXISTS quiz_sessions (
    run_id         UUID PRIMARY KEY,
    session_id     UUID NOT NULL,
    code           TEXT NOT NULL,
    end_reason     TEXT NOT NULL,
    question_count INTEGER NOT NULL,
    started_at     TIMESTAMPTZ,
    ended_at       TIMESTAMPTZ NOT NULL,
    leaderboard    JSONB,
    archived_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS quiz_sessions_ended_at_idx ON quiz_sessions (ended_at DESC);
CREATE INDEX IF NOT EXISTS quiz_sessions_session_id_idx ON quiz_sessions (session_id);

CREATE TABLE IF NOT EXISTS quiz_results (
    run_id         UUID NOT NULL REFERENCES quiz_sessions (run_id) ON DELETE CASCADE,
    participant_id UUID NOT NULL,
    name           TEXT NOT NULL,
    rank           INTEGER NOT NULL,
    score          INTEGER NOT NULL,
    last_answer    JSONB,
    PRIMARY KEY (run_id, participant_id)
);
`
