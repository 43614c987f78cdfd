package srs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MinimumEase is the hard floor for CardReviewState.EaseFactor.
const MinimumEase = 1.3

var validate = validator.New(validator.WithRequiredStructEnabled())

// CardReviewState is the review state of one card for one learner.
type CardReviewState struct {
	CardID         string     `json:"card_id" validate:"required"`
	EaseFactor     float64    `json:"ease_factor" validate:"gte=1.3"`
	IntervalDays   int        `json:"interval_days" validate:"gte=0"`
	Repetitions    int        `json:"repetitions" validate:"gte=0"`
	DueAt          time.Time  `json:"due_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	Lapses         int        `json:"lapses" validate:"gte=0"`
}

// IsDue reports whether the card may be reviewed at now.
func (s CardReviewState) IsDue(now time.Time) bool {
	return !s.DueAt.IsZero() && !now.Before(s.DueAt)
}

// IsNew reports whether the card has never been reviewed.
func (s CardReviewState) IsNew() bool {
	return s.LastReviewedAt == nil
}

// Learning reports whether the card has not graduated yet. Lapsed cards are
// learning again.
func (s CardReviewState) Learning() bool {
	return s.Repetitions == 0
}

// Mastered reports whether the scheduled interval has reached threshold days.
func (s CardReviewState) Mastered(threshold int) bool {
	return s.IntervalDays >= threshold
}

// Validate checks the field constraints of a stored state. Violations are
// reported as ErrInvalidState.
func (s CardReviewState) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidState, describe(err))
	}
	return nil
}

func (s CardReviewState) clone() CardReviewState {
	c := s
	if s.LastReviewedAt != nil {
		t := *s.LastReviewedAt
		c.LastReviewedAt = &t
	}
	return c
}

// describe turns validator output into a short "field tag=param" list.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s (%v) violates %s", fe.Field(), fe.Value(), rule))
	}
	return strings.Join(parts, ", ")
}
