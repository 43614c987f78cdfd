// Package stats summarizes a learner's progress from review states and history.
package stats

import (
	"math"
	"time"

	"github.com/conorfennell/kioku/internal/domain"
	"github.com/conorfennell/kioku/internal/srs"
)

// DefaultMatureDays is the interval at which a card counts as mastered.
const DefaultMatureDays = 21

// Summary is the study overview shown on the deck page and served as JSON.
type Summary struct {
	TodayReviews  int `json:"today_reviews"`
	TotalCards    int `json:"total_cards"`
	DueCards      int `json:"due_cards"`
	MasteredCards int `json:"mastered_cards"`
	StreakDays    int `json:"streak_days"`
	Accuracy      int `json:"accuracy"`
}

// Compute builds a Summary. Calendar days are taken in now's location.
// A matureDays of zero or less uses DefaultMatureDays.
func Compute(states []srs.CardReviewState, logs []domain.ReviewLog, now time.Time, matureDays int) Summary {
	if matureDays <= 0 {
		matureDays = DefaultMatureDays
	}

	s := Summary{TotalCards: len(states)}
	for _, st := range states {
		if st.IsDue(now) {
			s.DueCards++
		}
		if st.Mastered(matureDays) {
			s.MasteredCards++
		}
	}

	today := day(now, now.Location())
	reviewed := make(map[string]bool)
	correct := 0
	for _, l := range logs {
		d := day(l.Timestamp, now.Location())
		reviewed[d.Format(time.DateOnly)] = true
		if d.Equal(today) {
			s.TodayReviews++
		}
		if srs.Grade(l.Grade) != srs.Again {
			correct++
		}
	}
	if len(logs) > 0 {
		s.Accuracy = int(math.Round(float64(correct) * 100 / float64(len(logs))))
	}

	s.StreakDays = streak(reviewed, today)
	return s
}

// streak counts consecutive reviewed days ending today, or yesterday when
// today has no reviews yet.
func streak(reviewed map[string]bool, today time.Time) int {
	d := today
	if !reviewed[d.Format(time.DateOnly)] {
		d = d.AddDate(0, 0, -1)
	}
	n := 0
	for reviewed[d.Format(time.DateOnly)] {
		n++
		d = d.AddDate(0, 0, -1)
	}
	return n
}

func day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
