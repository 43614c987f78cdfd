package domain

import "time"

// Card is the immutable content of a flashcard, as authored in a deck file.
type Card struct {
	Front    string
	Back     string
	Reading  string
	Category string
	Level    string
	Hash     string
}

// ReviewLog records a single graded review of a card by a learner.
// Grade uses the scheduler's numbering:
// 1: Again
// 2: Hard
// 3: Good
// 4: Easy
// IntervalDays and EaseFactor are the values scheduled by that review.
type ReviewLog struct {
	LearnerID    string
	CardHash     string
	Timestamp    time.Time
	Grade        int
	IntervalDays int
	EaseFactor   float64
}
