package snapshot

const schema = `
-- One row per refresh family, holding the whole last-known canonical
-- event list as a JSON document. Reads and writes are whole-document;
-- there are no partial updates.
CREATE TABLE IF NOT EXISTS snapshots (
    family      TEXT PRIMARY KEY,
    payload     TEXT NOT NULL,
    event_count INTEGER NOT NULL DEFAULT 0,
    updated_at  DATETIME NOT NULL
);

-- One row per exam declaration, holding the exam plus its derived
-- study plan as a JSON document.
CREATE TABLE IF NOT EXISTS exams (
    id         TEXT PRIMARY KEY,
    payload    TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
`
