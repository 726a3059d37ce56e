package store

const schema = `
CREATE TABLE IF NOT EXISTS removals (
    id TEXT PRIMARY KEY,
    package TEXT NOT NULL,
    purge BOOLEAN NOT NULL DEFAULT 0,
    remove_dependents BOOLEAN NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    path TEXT,
    message TEXT,
    backend_url TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS removal_trace (
    removal_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    line TEXT NOT NULL,
    PRIMARY KEY (removal_id, seq),
    FOREIGN KEY (removal_id) REFERENCES removals(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_removals_package ON removals(package);
CREATE INDEX IF NOT EXISTS idx_removals_started ON removals(started_at);
`
