package srs

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Scheduler applies the SM-2 derived review algorithm. It holds no state
// besides its parameters, so every method is a pure function of its inputs
// and a Scheduler is safe for concurrent use.
type Scheduler struct {
	params Params
}

// NewScheduler returns a scheduler for p, or an error if p is out of range.
func NewScheduler(p Params) (*Scheduler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{params: p}, nil
}

var defaultScheduler = &Scheduler{params: DefaultParams()}

// Default returns a scheduler using DefaultParams.
func Default() *Scheduler { return defaultScheduler }

// Params returns the scheduler's parameters.
func (s *Scheduler) Params() Params { return s.params }

// InitializeCard returns the state of a card shown for the first time.
// Every call returns an independent value; callers must not create a second
// state for a card they already track.
func (s *Scheduler) InitializeCard(cardID string, now time.Time) CardReviewState {
	return CardReviewState{
		CardID:       cardID,
		EaseFactor:   s.params.InitialEase,
		IntervalDays: 0,
		Repetitions:  0,
		DueAt:        now,
		Lapses:       0,
	}
}

// DueCards returns the states with DueAt <= now, earliest first and ties
// broken by card id. The input slice is not modified.
func (s *Scheduler) DueCards(states []CardReviewState, now time.Time) ([]CardReviewState, error) {
	due := make([]CardReviewState, 0, len(states))
	for i, st := range states {
		if st.DueAt.IsZero() {
			return nil, fmt.Errorf("%w: state %d (card %q) has no due time", ErrInvalidInput, i, st.CardID)
		}
		if st.CardID == "" {
			return nil, fmt.Errorf("%w: state %d has no card id", ErrInvalidInput, i)
		}
		if st.IsDue(now) {
			due = append(due, st.clone())
		}
	}
	slices.SortFunc(due, func(a, b CardReviewState) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return strings.Compare(a.CardID, b.CardID)
	})
	return due, nil
}

// GradeReview returns the state that follows state after a review graded
// grade at now. The input is never modified.
func (s *Scheduler) GradeReview(state CardReviewState, grade Grade, now time.Time) (CardReviewState, error) {
	if !grade.IsValid() {
		return CardReviewState{}, fmt.Errorf("%w: %d", ErrInvalidGrade, int(grade))
	}
	if err := state.Validate(); err != nil {
		return CardReviewState{}, err
	}

	next := state.clone()
	reviewed := now
	next.LastReviewedAt = &reviewed

	if grade == Again {
		next.Repetitions = 0
		next.Lapses++
		next.IntervalDays = 0
		next.EaseFactor = clampEase(state.EaseFactor - s.params.AgainPenalty)
		// Re-queued within the same session.
		next.DueAt = now
		return next, nil
	}

	next.Repetitions++
	next.EaseFactor = clampEase(state.EaseFactor + s.easeDelta(grade))

	switch next.Repetitions {
	case 1:
		next.IntervalDays = s.params.FirstInterval
	case 2:
		next.IntervalDays = s.params.SecondInterval
	default:
		ivl := math.Round(float64(state.IntervalDays) * next.EaseFactor * s.multiplier(grade))
		// Capped before the conversion so huge stored intervals cannot overflow int.
		next.IntervalDays = int(math.Min(ivl, float64(s.params.MaximumInterval)))
	}
	next.IntervalDays = min(max(next.IntervalDays, 1), s.params.MaximumInterval)
	next.DueAt = now.AddDate(0, 0, next.IntervalDays)
	return next, nil
}

func (s *Scheduler) easeDelta(g Grade) float64 {
	switch g {
	case Hard:
		return -s.params.HardPenalty
	case Easy:
		return s.params.EasyBonus
	default:
		return 0
	}
}

func (s *Scheduler) multiplier(g Grade) float64 {
	switch g {
	case Hard:
		return s.params.HardMultiplier
	case Easy:
		return s.params.EasyMultiplier
	default:
		return 1
	}
}

func clampEase(e float64) float64 {
	return max(e, MinimumEase)
}

// InitializeCard calls Default().InitializeCard.
func InitializeCard(cardID string, now time.Time) CardReviewState {
	return defaultScheduler.InitializeCard(cardID, now)
}

// DueCards calls Default().DueCards.
func DueCards(states []CardReviewState, now time.Time) ([]CardReviewState, error) {
	return defaultScheduler.DueCards(states, now)
}

// GradeReview calls Default().GradeReview.
func GradeReview(state CardReviewState, grade Grade, now time.Time) (CardReviewState, error) {
	return defaultScheduler.GradeReview(state, grade, now)
}
