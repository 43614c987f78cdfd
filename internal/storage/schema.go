package storage

const schema = `
-- The 'sources' table tracks where decks come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local', -- 'local' or 'git'
    last_scanned DATETIME
);

-- The 'cards' table stores immutable flashcard content keyed by its content hash.
CREATE TABLE IF NOT EXISTS cards (
    hash TEXT PRIMARY KEY,
    front TEXT NOT NULL,
    back TEXT NOT NULL DEFAULT '',
    reading TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    level TEXT NOT NULL DEFAULT '',
    source_id INTEGER,
    created_at DATETIME NOT NULL,

    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);

-- Every source a card was found in. A card stays in the deck while any source holds it.
CREATE TABLE IF NOT EXISTS card_sources (
    card_hash TEXT NOT NULL,
    source_id INTEGER NOT NULL,

    PRIMARY KEY (card_hash, source_id),
    FOREIGN KEY(card_hash) REFERENCES cards(hash) ON DELETE CASCADE,
    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);

-- Databases created before card_sources existed only know the inserting source.
INSERT OR IGNORE INTO card_sources (card_hash, source_id)
SELECT hash, source_id FROM cards WHERE source_id IS NOT NULL;

-- One row per (learner, card): the spaced-repetition state.
CREATE TABLE IF NOT EXISTS review_states (
    learner_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    ease_factor REAL NOT NULL,
    interval_days INTEGER NOT NULL,
    repetitions INTEGER NOT NULL,
    due_at DATETIME NOT NULL,
    last_reviewed_at DATETIME,
    lapses INTEGER NOT NULL,

    PRIMARY KEY (learner_id, card_id),
    FOREIGN KEY(card_id) REFERENCES cards(hash) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_review_states_due ON review_states (learner_id, due_at);

-- Append-only history of graded reviews.
CREATE TABLE IF NOT EXISTS review_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    learner_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    grade INTEGER NOT NULL,
    reviewed_at DATETIME NOT NULL,
    interval_days INTEGER NOT NULL,
    ease_factor REAL NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(hash) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_review_log_learner ON review_log (learner_id, reviewed_at);
`
