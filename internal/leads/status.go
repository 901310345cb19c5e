package leads

// Status is the lead's position in the finite state machine. Transitions
// are legal only per the table in legalTransitions; direct status writes
// outside this package are forbidden.
type Status string

const (
	StatusNew                    Status = "NEW"
	StatusQualifying             Status = "QUALIFYING"
	StatusPendingApproval        Status = "PENDING_APPROVAL"
	StatusAwaitingDeposit        Status = "AWAITING_DEPOSIT"
	StatusDepositPaid            Status = "DEPOSIT_PAID"
	StatusBookingPending         Status = "BOOKING_PENDING"
	StatusBooked                 Status = "BOOKED"
	StatusRejected               Status = "REJECTED"
	StatusNeedsArtistReply       Status = "NEEDS_ARTIST_REPLY"
	StatusNeedsFollowUp          Status = "NEEDS_FOLLOW_UP"
	StatusTourConversionOffered  Status = "TOUR_CONVERSION_OFFERED"
	StatusWaitlisted             Status = "WAITLISTED"
	StatusCollectingTimeWindows  Status = "COLLECTING_TIME_WINDOWS"
	StatusDepositExpired         Status = "DEPOSIT_EXPIRED"
	StatusAbandoned              Status = "ABANDONED"
	StatusStale                  Status = "STALE"
	StatusOptOut                 Status = "OPTOUT"
	StatusNeedsManualFollowUp    Status = "NEEDS_MANUAL_FOLLOW_UP"
	// StatusBookingLinkSent is a deprecated, compatibility-only status.
	// It is never a transition target in current code paths; it exists so
	// older rows can still be matched by the sweeper's booking-link
	// reminder predicate (see DESIGN.md Open Question (b)).
	StatusBookingLinkSent Status = "BOOKING_LINK_SENT"
)

// terminal statuses admit no further transitions except the explicit
// restart paths enumerated in legalTransitions.
var terminal = map[Status]bool{
	StatusBooked:      true,
	StatusRejected:    true,
	StatusWaitlisted:  true,
	StatusOptOut:      true,
}

// legalTransitions is the authoritative adjacency table for transition().
// Forbidden transitions MUST raise ErrIllegalTransition.
var legalTransitions = map[Status]map[Status]bool{
	StatusNew: set(StatusQualifying),
	StatusQualifying: set(
		StatusPendingApproval,
		StatusNeedsArtistReply,
		StatusNeedsFollowUp,
		StatusTourConversionOffered,
		StatusWaitlisted,
		StatusAbandoned,
		StatusStale,
		StatusOptOut,
		StatusNeedsManualFollowUp,
	),
	StatusPendingApproval: set(
		StatusAwaitingDeposit,
		StatusRejected,
		StatusNeedsArtistReply,
		StatusNeedsFollowUp,
		StatusAbandoned,
		StatusStale,
		StatusOptOut,
	),
	StatusAwaitingDeposit: set(
		StatusDepositPaid,
		StatusDepositExpired,
		StatusRejected,
		StatusNeedsArtistReply,
		StatusNeedsFollowUp,
		StatusAbandoned,
		StatusStale,
		StatusCollectingTimeWindows,
		StatusOptOut,
	),
	StatusDepositPaid: set(
		StatusBookingPending,
		StatusNeedsArtistReply,
		StatusNeedsFollowUp,
		StatusOptOut,
	),
	StatusBookingPending: set(
		StatusBooked,
		StatusNeedsArtistReply,
		StatusNeedsFollowUp,
		StatusCollectingTimeWindows,
		StatusOptOut,
	),
	StatusCollectingTimeWindows: set(
		StatusNeedsArtistReply,
		StatusOptOut,
	),
	StatusTourConversionOffered: set(
		StatusPendingApproval,
		StatusWaitlisted,
		StatusOptOut,
	),
	StatusNeedsArtistReply: set(
		StatusQualifying,
		StatusPendingApproval,
		StatusAwaitingDeposit,
		StatusDepositPaid,
		StatusBookingPending,
		StatusRejected,
		StatusOptOut,
	),
	StatusAbandoned: set(StatusNew),
	StatusStale:     set(StatusNew),
	StatusOptOut:    set(StatusNew),

	// NEEDS_FOLLOW_UP, NEEDS_MANUAL_FOLLOW_UP, DEPOSIT_EXPIRED and the
	// terminal statuses have no further caller-initiated transitions in
	// this table; operators act on them out of band (e.g. via action
	// tokens that call update_status_if_matches directly against a named
	// expected status, which is validated at the call site rather than
	// through this adjacency table).
}

func set(statuses ...Status) map[Status]bool {
	m := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

// IsLegalTransition reports whether to is reachable from.
func IsLegalTransition(from, to Status) bool {
	allowed, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// IsTerminal reports whether status admits no further automated transitions.
func IsTerminal(s Status) bool {
	return terminal[s]
}
