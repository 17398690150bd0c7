package service

import "errors"

// Failure taxonomy shared by the state machine, the provider client, the
// poller and the concatenation engine. Callers classify with errors.Is.
var (
	// ErrInvalidState: transition not legal from the entity's current
	// state. Caller error, never retried.
	ErrInvalidState = errors.New("invalid state for requested transition")

	// ErrNoCapacity: the segment already has a non-terminal TaskRecord.
	ErrNoCapacity = errors.New("segment already has a generation job in flight")

	// ErrProviderRejected: the provider refused the inputs. Permanent,
	// surfaced to the user for correction.
	ErrProviderRejected = errors.New("provider rejected submission")

	// ErrProviderUnavailable: transport failure or provider 5xx.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrPollTimeout: a pending task exceeded its maximum wall-clock age.
	ErrPollTimeout = errors.New("poll timeout")

	// ErrVoiceNotReady: generation needs narration audio but the
	// project's voice clone has not reached a terminal state yet.
	ErrVoiceNotReady = errors.New("voice clone not finished")

	// ErrEncoding: an input file could not be read or encoded during
	// concatenation.
	ErrEncoding = errors.New("encoding failed")

	// ErrIncompleteSegments: concatenation requested while the ordinal
	// sequence has gaps or a segment is not video_approved.
	ErrIncompleteSegments = errors.New("incomplete segment set")
)
