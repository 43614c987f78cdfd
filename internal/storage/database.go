package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/kioku/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("storage: not found")

// DB represents a wrapper around the SQL database connection.
// A single DB handle is owned by the host and passed to every component that
// needs persistence.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Source represents a deck source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
// It returns nil, nil when the source is not registered.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	err := row.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM sources
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source. Cards found only in this source are deleted
// together with every learner's review state and history for them; cards
// another source still holds stay in the deck and move to that source.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	onlyInSource := `
		SELECT card_hash FROM card_sources cs
		WHERE cs.source_id = ?
		AND NOT EXISTS (
			SELECT 1 FROM card_sources other
			WHERE other.card_hash = cs.card_hash AND other.source_id <> cs.source_id
		)`
	for _, stmt := range []string{
		`DELETE FROM review_log WHERE card_id IN (` + onlyInSource + `)`,
		`DELETE FROM review_states WHERE card_id IN (` + onlyInSource + `)`,
		`DELETE FROM cards WHERE hash IN (` + onlyInSource + `)`,
		`DELETE FROM card_sources WHERE source_id = ?`,
		`UPDATE cards SET source_id = (
			SELECT MIN(source_id) FROM card_sources WHERE card_hash = cards.hash
		) WHERE source_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, sourceID); err != nil {
			return fmt.Errorf("failed to delete cards of source ID %d: %w", sourceID, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("source ID %d: %w", sourceID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertCard inserts a new card's content into the database and records
// sourceID as holding it.
// Review state is created per learner when the card is first shown.
func (db *DB) InsertCard(ctx context.Context, card domain.Card, sourceID int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cards (hash, front, back, reading, category, level, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.Hash,
		card.Front,
		card.Back,
		card.Reading,
		card.Category,
		card.Level,
		sourceID,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	if err := addCardToSource(ctx, tx, card.Hash, sourceID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddCardToSource records that sourceID also holds an existing card.
func (db *DB) AddCardToSource(ctx context.Context, hash string, sourceID int64) error {
	return addCardToSource(ctx, db.conn, hash, sourceID)
}

func addCardToSource(ctx context.Context, e execer, hash string, sourceID int64) error {
	_, err := e.ExecContext(ctx, `
		INSERT OR IGNORE INTO card_sources (card_hash, source_id) VALUES (?, ?)
	`, hash, sourceID)
	if err != nil {
		return fmt.Errorf("failed to add card %s to source ID %d: %w", hash, sourceID, err)
	}
	return nil
}

// RemoveCardFromSource records that sourceID no longer holds the card. When
// no other source holds it, the card is deleted with every learner's review
// state and history and true is returned. Otherwise the card moves to one
// of the remaining sources and keeps its review state.
func (db *DB) RemoveCardFromSource(ctx context.Context, hash string, sourceID int64) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM card_sources WHERE card_hash = ? AND source_id = ?
	`, hash, sourceID); err != nil {
		return false, fmt.Errorf("failed to remove card %s from source ID %d: %w", hash, sourceID, err)
	}

	var remaining sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT MIN(source_id) FROM card_sources WHERE card_hash = ?
	`, hash).Scan(&remaining); err != nil {
		return false, fmt.Errorf("failed to look up sources of card %s: %w", hash, err)
	}

	deleted := !remaining.Valid
	if deleted {
		if err := deleteCard(ctx, tx, hash); err != nil {
			return false, err
		}
	} else if _, err := tx.ExecContext(ctx, `
		UPDATE cards SET source_id = ? WHERE hash = ?
	`, remaining.Int64, hash); err != nil {
		return false, fmt.Errorf("failed to move card %s to source ID %d: %w", hash, remaining.Int64, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

const cardColumns = `hash, front, back, reading, category, level`

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (domain.Card, error) {
	var c domain.Card
	err := s.Scan(&c.Hash, &c.Front, &c.Back, &c.Reading, &c.Category, &c.Level)
	return c, err
}

// FindCardByHash retrieves a card's content by its hash.
// It returns nil, nil when the card is not in any deck.
func (db *DB) FindCardByHash(ctx context.Context, hash string) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE hash = ?`, hash)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	return &card, nil
}

// Cards returns every card in the deck, oldest first.
func (db *DB) Cards(ctx context.Context) ([]domain.Card, error) {
	return db.queryCards(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY created_at, hash`)
}

// GetCardsBySourceID retrieves all cards a specific source holds, including
// cards that another source inserted first.
func (db *DB) GetCardsBySourceID(ctx context.Context, sourceID int64) ([]domain.Card, error) {
	cards, err := db.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		JOIN card_sources cs ON cs.card_hash = cards.hash
		WHERE cs.source_id = ?
		ORDER BY hash
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("source ID %d: %w", sourceID, err)
	}
	return cards, nil
}

func (db *DB) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}
	return cards, nil
}

// DeleteCardByHash removes a card from the deck. Every learner's review
// state and history for the card is discarded with it.
func (db *DB) DeleteCardByHash(ctx context.Context, hash string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteCard(ctx, tx, hash); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func deleteCard(ctx context.Context, e execer, hash string) error {
	for _, stmt := range []string{
		`DELETE FROM review_log WHERE card_id = ?`,
		`DELETE FROM review_states WHERE card_id = ?`,
		`DELETE FROM card_sources WHERE card_hash = ?`,
		`DELETE FROM cards WHERE hash = ?`,
	} {
		if _, err := e.ExecContext(ctx, stmt, hash); err != nil {
			return fmt.Errorf("failed to delete card with hash %s: %w", hash, err)
		}
	}
	return nil
}
