package chat

import "errors"

var (
	// ErrQuestionTooShort is returned for input under MinQuestionRunes after trimming.
	ErrQuestionTooShort = errors.New("question must be at least 3 characters")
	// ErrQuestionInFlight is returned when a question is already awaiting its answer.
	ErrQuestionInFlight = errors.New("a question is already in progress")
	// ErrSessionChanged is returned to a caller whose response arrived after
	// the session was switched; the response was discarded.
	ErrSessionChanged = errors.New("session changed while waiting for a response")
)
