package sqlite

const schema = `
-- Incidents table
CREATE TABLE IF NOT EXISTS incidents (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK(kind IN ('high_cpu', 'high_memory', 'safety_issue', 'build_failure', 'runtime_error', 'agent_failure', 'other')),
    severity TEXT NOT NULL CHECK(severity IN ('low', 'medium', 'high', 'critical')),
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    stack_trace TEXT NOT NULL DEFAULT '',
    logs TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    metrics TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'healing', 'resolved', 'failed')),
    attempt_count INTEGER NOT NULL DEFAULT 0 CHECK(attempt_count >= 0),
    last_attempt_at DATETIME,
    root_cause TEXT NOT NULL DEFAULT '',
    fix_description TEXT NOT NULL DEFAULT '',
    commit_hash TEXT NOT NULL DEFAULT '',
    resolved_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);
CREATE INDEX IF NOT EXISTS idx_incidents_kind ON incidents(kind);
CREATE INDEX IF NOT EXISTS idx_incidents_severity ON incidents(severity);
CREATE INDEX IF NOT EXISTS idx_incidents_created_at ON incidents(created_at);

-- Healing sessions table
-- One row per end-to-end repair attempt. The partial unique index enforces
-- the cardinal invariant: at most one active session per incident.
CREATE TABLE IF NOT EXISTS healing_sessions (
    id TEXT PRIMARY KEY,
    incident_id TEXT NOT NULL,
    phase TEXT NOT NULL DEFAULT 'diagnosis' CHECK(phase IN ('diagnosis', 'repair', 'verify', 'deploy', 'complete', 'failed')),
    status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'success', 'failed')),
    strategy TEXT NOT NULL CHECK(strategy IN ('knowledge_base', 'worker_agent', 'escalated')),
    model_tag TEXT NOT NULL DEFAULT '',
    worker_job_id TEXT NOT NULL DEFAULT '',
    kb_match_id TEXT NOT NULL DEFAULT '',
    kb_match_confidence INTEGER CHECK(kb_match_confidence IS NULL OR (kb_match_confidence >= 0 AND kb_match_confidence <= 100)),
    diagnosis_notes TEXT NOT NULL DEFAULT '',
    proposed_fix TEXT NOT NULL DEFAULT '',
    files_changed TEXT NOT NULL DEFAULT '[]',
    verification_results TEXT NOT NULL DEFAULT '',
    verification_passed INTEGER,
    commit_hash TEXT NOT NULL DEFAULT '',
    pr_number INTEGER,
    pr_url TEXT NOT NULL DEFAULT '',
    deployment_status TEXT NOT NULL DEFAULT '' CHECK(deployment_status IN ('', 'deploying', 'succeeded', 'failed')),
    deployment_started_at DATETIME,
    error TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    FOREIGN KEY (incident_id) REFERENCES incidents(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active ON healing_sessions(incident_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_sessions_incident ON healing_sessions(incident_id);
CREATE INDEX IF NOT EXISTS idx_sessions_phase ON healing_sessions(phase);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON healing_sessions(status);

-- Heal attempts table (append-only audit trail)
-- One row per tier invocation inside a session, with an ordered action log.
CREATE TABLE IF NOT EXISTS heal_attempts (
    id TEXT PRIMARY KEY,
    incident_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    attempt_number INTEGER NOT NULL CHECK(attempt_number >= 1),
    strategy TEXT NOT NULL CHECK(strategy IN ('knowledge_base', 'worker_agent', 'escalated')),
    actions_taken TEXT NOT NULL DEFAULT '[]',
    success INTEGER,
    verification_passed INTEGER,
    error TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    FOREIGN KEY (incident_id) REFERENCES incidents(id) ON DELETE CASCADE,
    FOREIGN KEY (session_id) REFERENCES healing_sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_heal_attempts_incident ON heal_attempts(incident_id);
CREATE INDEX IF NOT EXISTS idx_heal_attempts_session ON heal_attempts(session_id);

-- Knowledge base table
-- One entry per error signature mapping to the last known-good fix.
CREATE TABLE IF NOT EXISTS knowledge_base (
    id TEXT PRIMARY KEY,
    error_signature TEXT NOT NULL UNIQUE,
    error_kind TEXT NOT NULL CHECK(error_kind IN ('high_cpu', 'high_memory', 'safety_issue', 'build_failure', 'runtime_error', 'agent_failure', 'other')),
    context TEXT NOT NULL DEFAULT '',
    successful_fix TEXT NOT NULL DEFAULT '',
    times_encountered INTEGER NOT NULL DEFAULT 1 CHECK(times_encountered >= 1),
    times_fixed INTEGER NOT NULL DEFAULT 0 CHECK(times_fixed >= 0 AND times_fixed <= times_encountered),
    last_encountered DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    confidence INTEGER NOT NULL DEFAULT 0 CHECK(confidence >= 0 AND confidence <= 100),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_kb_kind ON knowledge_base(error_kind);
CREATE INDEX IF NOT EXISTS idx_kb_last_encountered ON knowledge_base(last_encountered);

-- Fix attempts table
-- Records every proposed fix and its outcome; feeds the confidence scorer.
CREATE TABLE IF NOT EXISTS fix_attempts (
    id TEXT PRIMARY KEY,
    error_signature TEXT NOT NULL,
    session_id TEXT NOT NULL,
    proposed_fix TEXT NOT NULL DEFAULT '',
    confidence_score INTEGER NOT NULL DEFAULT 0 CHECK(confidence_score >= 0 AND confidence_score <= 100),
    outcome TEXT NOT NULL DEFAULT 'pending' CHECK(outcome IN ('pending', 'success', 'failure', 'rolled_back')),
    verification_results TEXT NOT NULL DEFAULT '',
    pr_number INTEGER,
    pr_url TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    FOREIGN KEY (session_id) REFERENCES healing_sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_fix_attempts_signature ON fix_attempts(error_signature, created_at);

-- Users table
-- Minimal platform user records for system-identity resolution.
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    role TEXT NOT NULL DEFAULT 'member' CHECK(role IN ('admin', 'member')),
    is_owner INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
CREATE INDEX IF NOT EXISTS idx_users_owner ON users(is_owner);

-- Healing events table
-- Durable copy of the events published on the bus.
CREATE TABLE IF NOT EXISTS healing_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    incident_id TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL CHECK(severity IN ('info', 'warning', 'error', 'critical')),
    message TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_healing_events_incident ON healing_events(incident_id);
CREATE INDEX IF NOT EXISTS idx_healing_events_type ON healing_events(type);
CREATE INDEX IF NOT EXISTS idx_healing_events_severity ON healing_events(severity);
CREATE INDEX IF NOT EXISTS idx_healing_events_timestamp ON healing_events(timestamp);

-- Config table (key-value pairs)
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Healable incidents view
-- Incidents eligible for a healing attempt, before the attempt cap and
-- rate limits are applied (those are configuration, not schema).
CREATE VIEW IF NOT EXISTS healable_incidents AS
SELECT i.*
FROM incidents i
WHERE i.status IN ('open', 'failed')
  AND NOT EXISTS (
    SELECT 1 FROM healing_sessions s
    WHERE s.incident_id = i.id
      AND s.status = 'active'
  );
`
