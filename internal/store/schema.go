package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id           TEXT PRIMARY KEY,
    source               TEXT NOT NULL,
    started_at           TEXT,
    ended_at             TEXT,
    duration_secs        INTEGER,
    ttfb_batches         INTEGER NOT NULL DEFAULT 0,
    character_batches    INTEGER NOT NULL DEFAULT 0,
    last_stt_ms          REAL,
    last_llm_ms          REAL,
    last_tts_ms          REAL,
    mean_stt_ms          REAL,
    mean_llm_ms          REAL,
    mean_tts_ms          REAL,
    prompt_tokens        INTEGER,
    completion_tokens    INTEGER,
    total_tokens         INTEGER,
    message_count        INTEGER NOT NULL DEFAULT 0,
    saved_at             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    session_id           TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    seq                  INTEGER NOT NULL,
    message_id           TEXT NOT NULL,
    role                 TEXT NOT NULL,
    content              TEXT NOT NULL,
    display              TEXT NOT NULL,
    created_at           TEXT,
    PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS ttfb_points (
    session_id           TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    seq                  INTEGER NOT NULL,
    timestamp            TEXT NOT NULL,
    stt_ms               REAL,
    llm_ms               REAL,
    tts_ms               REAL,
    PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`
