package sqlite

const schema = `
-- Saved review runs. The record column holds the full sealed execution
-- record as JSON; the listing columns are denormalized for cheap queries.
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    document_name TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    analysis TEXT NOT NULL DEFAULT '',
    comment_count INTEGER NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL,
    completed_at DATETIME NOT NULL,
    success INTEGER NOT NULL DEFAULT 0,
    record_version TEXT NOT NULL,
    comments TEXT NOT NULL DEFAULT '[]',
    record TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
`
