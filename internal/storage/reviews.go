package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conorfennell/kioku/internal/domain"
	"github.com/conorfennell/kioku/internal/srs"
)

// Load returns every review state of a learner keyed by card id.
// A learner who has never studied gets an empty, non-nil map.
func (db *DB) Load(ctx context.Context, learnerID string) (map[string]srs.CardReviewState, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, ease_factor, interval_days, repetitions, due_at, last_reviewed_at, lapses
		FROM review_states WHERE learner_id = ?
	`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load review states for learner %s: %w", learnerID, err)
	}
	defer rows.Close()

	states := make(map[string]srs.CardReviewState)
	for rows.Next() {
		var (
			st           srs.CardReviewState
			lastReviewed sql.NullTime
		)
		if err := rows.Scan(
			&st.CardID,
			&st.EaseFactor,
			&st.IntervalDays,
			&st.Repetitions,
			&st.DueAt,
			&lastReviewed,
			&st.Lapses,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review state row for learner %s: %w", learnerID, err)
		}
		st.DueAt = st.DueAt.UTC()
		if lastReviewed.Valid {
			t := lastReviewed.Time.UTC()
			st.LastReviewedAt = &t
		}
		states[st.CardID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review states for learner %s: %w", learnerID, err)
	}
	return states, nil
}

// Save writes a single review state, replacing any previous state of the
// same (learner, card) pair.
func (db *DB) Save(ctx context.Context, learnerID, cardID string, state srs.CardReviewState) error {
	if err := saveState(ctx, db.conn, learnerID, cardID, state); err != nil {
		return fmt.Errorf("failed to save review state for card %s: %w", cardID, err)
	}
	return nil
}

// RecordReview writes the graded state and appends the review to the
// history in one transaction. Either both are stored or neither is.
func (db *DB) RecordReview(ctx context.Context, learnerID string, state srs.CardReviewState, log domain.ReviewLog) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveState(ctx, tx, learnerID, state.CardID, state); err != nil {
		return fmt.Errorf("failed to save review state for card %s: %w", state.CardID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO review_log (learner_id, card_id, grade, reviewed_at, interval_days, ease_factor)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		learnerID,
		log.CardHash,
		log.Grade,
		log.Timestamp.UTC(),
		log.IntervalDays,
		log.EaseFactor,
	)
	if err != nil {
		return fmt.Errorf("failed to append review log for card %s: %w", log.CardHash, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReviewLogs returns a learner's review history, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, learnerID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT learner_id, card_id, grade, reviewed_at, interval_days, ease_factor
		FROM review_log WHERE learner_id = ?
		ORDER BY reviewed_at, id
	`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review log for learner %s: %w", learnerID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var l domain.ReviewLog
		if err := rows.Scan(&l.LearnerID, &l.CardHash, &l.Grade, &l.Timestamp, &l.IntervalDays, &l.EaseFactor); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		l.Timestamp = l.Timestamp.UTC()
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review log: %w", err)
	}
	return logs, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveState(ctx context.Context, e execer, learnerID, cardID string, state srs.CardReviewState) error {
	var lastReviewed sql.NullTime
	if state.LastReviewedAt != nil {
		lastReviewed = sql.NullTime{Time: state.LastReviewedAt.UTC(), Valid: true}
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO review_states (learner_id, card_id, ease_factor, interval_days, repetitions, due_at, last_reviewed_at, lapses)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (learner_id, card_id) DO UPDATE SET
			ease_factor = excluded.ease_factor,
			interval_days = excluded.interval_days,
			repetitions = excluded.repetitions,
			due_at = excluded.due_at,
			last_reviewed_at = excluded.last_reviewed_at,
			lapses = excluded.lapses
	`,
		learnerID,
		cardID,
		state.EaseFactor,
		state.IntervalDays,
		state.Repetitions,
		state.DueAt.UTC(),
		lastReviewed,
		state.Lapses,
	)
	return err
}
