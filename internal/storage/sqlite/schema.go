package sqlite

const schema = `
-- Lessons table: confidence-scored heuristics
CREATE TABLE IF NOT EXISTS lessons (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    domain TEXT NOT NULL,
    rule TEXT NOT NULL CHECK(length(rule) <= 2000),
    explanation TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0.5 CHECK(confidence >= 0.0 AND confidence <= 1.0),
    source TEXT NOT NULL DEFAULT 'observation',
    validations INTEGER NOT NULL DEFAULT 0 CHECK(validations >= 0),
    is_golden INTEGER NOT NULL DEFAULT 0,
    retired INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    promoted_at DATETIME,
    UNIQUE(domain, rule)
);

CREATE INDEX IF NOT EXISTS idx_lessons_domain ON lessons(domain);
CREATE INDEX IF NOT EXISTS idx_lessons_confidence ON lessons(confidence);
CREATE INDEX IF NOT EXISTS idx_lessons_golden ON lessons(is_golden);

-- Trail events table: append-only resource touches.
-- The composite primary key makes trail laying idempotent per (task, path).
CREATE TABLE IF NOT EXISTS trail_events (
    task_id TEXT NOT NULL,
    path TEXT NOT NULL,
    domain TEXT NOT NULL DEFAULT '',
    strength REAL NOT NULL CHECK(strength > 0),
    laid_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (task_id, path)
);

CREATE INDEX IF NOT EXISTS idx_trail_events_path ON trail_events(path);
CREATE INDEX IF NOT EXISTS idx_trail_events_laid_at ON trail_events(laid_at);

-- Failures table: fingerprinted recurring failures
CREATE TABLE IF NOT EXISTS failures (
    fingerprint TEXT PRIMARY KEY,
    domain TEXT NOT NULL DEFAULT '',
    signature TEXT NOT NULL,
    root_cause TEXT NOT NULL DEFAULT '',
    lesson TEXT NOT NULL DEFAULT '',
    severity INTEGER NOT NULL DEFAULT 3 CHECK(severity >= 1 AND severity <= 5),
    state TEXT NOT NULL DEFAULT 'new',
    tier TEXT NOT NULL DEFAULT 'cheap',
    consecutive_failures INTEGER NOT NULL DEFAULT 0 CHECK(consecutive_failures >= 0),
    first_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_failures_state ON failures(state);
CREATE INDEX IF NOT EXISTS idx_failures_domain ON failures(domain);

-- Escalation state: single row, owned exclusively by the watcher
CREATE TABLE IF NOT EXISTS escalation_state (
    id INTEGER PRIMARY KEY CHECK(id = 1),
    tier TEXT NOT NULL DEFAULT 'fast',
    last_tick DATETIME,
    consecutive_escalations INTEGER NOT NULL DEFAULT 0,
    circuit_open INTEGER NOT NULL DEFAULT 0,
    circuit_opened_at DATETIME
);

-- Events table (activity feed / audit trail)
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT 'info',
    message TEXT NOT NULL,
    data TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
`
