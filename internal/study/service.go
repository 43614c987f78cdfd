// Package study runs review sessions: it joins deck content with a learner's
// review states, asks the scheduler what is due and persists graded reviews.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/conorfennell/kioku/internal/domain"
	"github.com/conorfennell/kioku/internal/srs"
	"github.com/conorfennell/kioku/internal/stats"
)

// ErrCardNotFound is returned when a review names a card that is not in the deck.
var ErrCardNotFound = errors.New("study: card not found")

// Store persists review states and history per learner.
type Store interface {
	Load(ctx context.Context, learnerID string) (map[string]srs.CardReviewState, error)
	Save(ctx context.Context, learnerID, cardID string, state srs.CardReviewState) error
	RecordReview(ctx context.Context, learnerID string, state srs.CardReviewState, log domain.ReviewLog) error
	ReviewLogs(ctx context.Context, learnerID string) ([]domain.ReviewLog, error)
}

// CardProvider supplies deck content.
type CardProvider interface {
	Cards(ctx context.Context) ([]domain.Card, error)
	FindCardByHash(ctx context.Context, hash string) (*domain.Card, error)
}

// Item is a card together with the learner's state for it.
type Item struct {
	Card  domain.Card
	State srs.CardReviewState
}

// Options configures a Service. Zero values fall back to the default
// scheduler, the system clock, stats.DefaultMatureDays and slog.Default().
type Options struct {
	Scheduler  *srs.Scheduler
	Clock      srs.Clock
	MatureDays int
	Logger     *slog.Logger
}

// Service is safe for concurrent use as long as its Store is.
type Service struct {
	store      Store
	cards      CardProvider
	scheduler  *srs.Scheduler
	clock      srs.Clock
	matureDays int
	logger     *slog.Logger
}

// NewService creates a study service over the given store and deck.
func NewService(store Store, cards CardProvider, opts Options) *Service {
	s := &Service{
		store:      store,
		cards:      cards,
		scheduler:  opts.Scheduler,
		clock:      opts.Clock,
		matureDays: opts.MatureDays,
		logger:     opts.Logger,
	}
	if s.scheduler == nil {
		s.scheduler = srs.Default()
	}
	if s.clock == nil {
		s.clock = srs.SystemClock{}
	}
	if s.matureDays <= 0 {
		s.matureDays = stats.DefaultMatureDays
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Queue returns the learner's due cards, earliest first.
func (s *Service) Queue(ctx context.Context, learnerID string) ([]Item, error) {
	items, err := s.items(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Card, len(items))
	states := make([]srs.CardReviewState, 0, len(items))
	for _, it := range items {
		byID[it.Card.Hash] = it.Card
		states = append(states, it.State)
	}

	due, err := s.scheduler.DueCards(states, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to select due cards: %w", err)
	}

	queue := make([]Item, 0, len(due))
	for _, st := range due {
		queue = append(queue, Item{Card: byID[st.CardID], State: st})
	}
	return queue, nil
}

// Next returns the first due card, or nil when nothing is due.
func (s *Service) Next(ctx context.Context, learnerID string) (*Item, error) {
	queue, err := s.Queue(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if len(queue) == 0 {
		return nil, nil
	}
	return &queue[0], nil
}

// Answer grades a review of cardID and stores the resulting state with a
// history entry. When storing fails the error is returned and the learner's
// state is left as it was.
func (s *Service) Answer(ctx context.Context, learnerID, cardID string, grade srs.Grade) (srs.CardReviewState, error) {
	if !grade.IsValid() {
		return srs.CardReviewState{}, fmt.Errorf("%w: %d", srs.ErrInvalidGrade, int(grade))
	}

	card, err := s.cards.FindCardByHash(ctx, cardID)
	if err != nil {
		return srs.CardReviewState{}, fmt.Errorf("failed to find card %s: %w", cardID, err)
	}
	if card == nil {
		return srs.CardReviewState{}, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}

	states, err := s.store.Load(ctx, learnerID)
	if err != nil {
		return srs.CardReviewState{}, fmt.Errorf("failed to load review states: %w", err)
	}

	now := s.clock.Now()
	current, ok := states[cardID]
	if !ok {
		current = s.scheduler.InitializeCard(cardID, now)
	}

	next, err := s.scheduler.GradeReview(current, grade, now)
	if err != nil {
		return srs.CardReviewState{}, fmt.Errorf("failed to grade card %s: %w", cardID, err)
	}

	entry := domain.ReviewLog{
		LearnerID:    learnerID,
		CardHash:     cardID,
		Timestamp:    now,
		Grade:        int(grade),
		IntervalDays: next.IntervalDays,
		EaseFactor:   next.EaseFactor,
	}
	if err := s.store.RecordReview(ctx, learnerID, next, entry); err != nil {
		s.logger.Error("Failed to record review", "learner", learnerID, "card", cardID, "error", err)
		return srs.CardReviewState{}, fmt.Errorf("failed to record review of card %s: %w", cardID, err)
	}

	s.logger.Debug("Review recorded",
		"learner", learnerID,
		"card", cardID,
		"grade", grade.String(),
		"interval_days", next.IntervalDays,
		"ease", next.EaseFactor,
	)
	return next, nil
}

// Stats summarizes the learner's progress over the current deck.
func (s *Service) Stats(ctx context.Context, learnerID string) (stats.Summary, error) {
	items, err := s.items(ctx, learnerID)
	if err != nil {
		return stats.Summary{}, err
	}
	logs, err := s.store.ReviewLogs(ctx, learnerID)
	if err != nil {
		return stats.Summary{}, fmt.Errorf("failed to load review history: %w", err)
	}

	states := make([]srs.CardReviewState, 0, len(items))
	for _, it := range items {
		states = append(states, it.State)
	}
	return stats.Compute(states, logs, s.clock.Now(), s.matureDays), nil
}

// items joins every deck card with the learner's state for it. Cards seen for
// the first time get an initial state, which is saved. States of cards that
// left the deck are ignored.
func (s *Service) items(ctx context.Context, learnerID string) ([]Item, error) {
	cards, err := s.cards.Cards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}
	states, err := s.store.Load(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load review states: %w", err)
	}

	now := s.clock.Now()
	items := make([]Item, 0, len(cards))
	for _, card := range cards {
		st, ok := states[card.Hash]
		if !ok {
			st = s.scheduler.InitializeCard(card.Hash, now)
			if err := s.store.Save(ctx, learnerID, card.Hash, st); err != nil {
				return nil, fmt.Errorf("failed to initialize card %s: %w", card.Hash, err)
			}
			s.logger.Debug("Initialized review state", "learner", learnerID, "card", card.Hash)
		}
		items = append(items, Item{Card: card, State: st})
	}
	return items, nil
}
