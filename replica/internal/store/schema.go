package store

// Schema contains the DDL for the replica tables.
const Schema = `
-- One row per mirrored document. state holds the reconstructed records as JSON.
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    last_seq    INTEGER NOT NULL DEFAULT 0,
    gaps        INTEGER NOT NULL DEFAULT 0,
    patches     INTEGER NOT NULL DEFAULT 0,
    state       TEXT NOT NULL DEFAULT '[]',
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);

-- Patch log, append-only.
CREATE TABLE IF NOT EXISTS patches (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    type        TEXT NOT NULL,
    body        TEXT NOT NULL,
    records     INTEGER NOT NULL DEFAULT 0,
    sent_at     INTEGER NOT NULL,
    received_at INTEGER NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_patches_session ON patches(session_id, seq);
`
