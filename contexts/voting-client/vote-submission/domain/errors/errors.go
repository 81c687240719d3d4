package errors

import "errors"

var (
	ErrInvalidBallot        = errors.New("invalid ballot")
	ErrPollRequired         = errors.New("poll is required")
	ErrParticipantRequired  = errors.New("participant is required")
	ErrPollClosed           = errors.New("poll is closed")
	ErrSessionConflict      = errors.New("another submission session is active")
	ErrPollMismatch         = errors.New("poll does not match the active submission session")
	ErrInvalidAnswer        = errors.New("answer is not part of the poll")
	ErrTransportFailure     = errors.New("vote transport failure")
	ErrInvalidProgressInput = errors.New("invalid progress input")
	ErrProgressRegression   = errors.New("votes used cannot decrease")
	ErrPollNotFound         = errors.New("poll not found")
	ErrParticipantNotFound  = errors.New("participant not found")
)
