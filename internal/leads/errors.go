package leads

import "errors"

var (
	// ErrLeadNotFound is returned when a lead is not found.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrIllegalTransition is raised when the requested (from, to) pair is
	// not present in legalTransitions. The caller MUST NOT retry; the lead
	// is left unchanged.
	ErrIllegalTransition = errors.New("leads: illegal status transition")

	// ErrTransitionRace is raised when the row's status, re-read after
	// acquiring the lock, no longer matches the caller's expected "from"
	// status — a concurrent transition won first.
	ErrTransitionRace = errors.New("leads: status changed during transition")

	// ErrMissingPhone is returned when a phone identifier is required but absent.
	ErrMissingPhone = errors.New("leads: phone is required")

	// ErrMissingArtistID is returned when an artist/org namespace is required but absent.
	ErrMissingArtistID = errors.New("leads: artist id is required")
)
