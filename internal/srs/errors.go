package srs

import "errors"

// Sentinel errors returned by the scheduler.
// Use errors.Is to check: errors.Is(err, srs.ErrInvalidGrade)
var (
	ErrInvalidGrade = errors.New("srs: invalid grade")
	ErrInvalidInput = errors.New("srs: invalid input")
	ErrInvalidState = errors.New("srs: invalid state")
)
