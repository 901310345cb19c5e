package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkline/bookingbot/internal/actiontoken"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/pkg/logging"
)

// Stats is the admin dashboard's counters. Grounded on the teacher's
// clinic.Stats shape, adapted from payment-table SQL aggregation to
// leads.Repository.ListByStatuses with client-side counting — this
// studio tracks one artist, so a status scan is cheap and keeps the
// dashboard off raw SQL.
type Stats struct {
	ArtistID             string `json:"artist_id"`
	ConversationsStarted int    `json:"conversations_started"`
	PendingApproval      int    `json:"pending_approval"`
	AwaitingDeposit      int    `json:"awaiting_deposit"`
	DepositsPaid         int    `json:"deposits_paid"`
	BookingsToday        int    `json:"bookings_today"`
	PendingHandovers     int    `json:"pending_handovers"`
	GeneratedAt          string `json:"generated_at"`
}

// statsLeadRepo is the subset of leads.Repository the stats handler needs.
type statsLeadRepo interface {
	ListByStatuses(ctx context.Context, statuses ...leads.Status) ([]*leads.Lead, error)
}

// StatsHandler serves GET /admin/stats.
type StatsHandler struct {
	repo   statsLeadRepo
	now    func() time.Time
	logger *logging.Logger
}

func NewStatsHandler(repo statsLeadRepo, now func() time.Time, logger *logging.Logger) *StatsHandler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsHandler{repo: repo, now: now, logger: logger}
}

func (h *StatsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.ListByStatuses(r.Context(),
		leads.StatusNew, leads.StatusQualifying, leads.StatusPendingApproval,
		leads.StatusAwaitingDeposit, leads.StatusDepositPaid, leads.StatusBookingPending,
		leads.StatusBooked, leads.StatusNeedsArtistReply, leads.StatusCollectingTimeWindows,
		leads.StatusTourConversionOffered,
	)
	if err != nil {
		h.logger.Error("admin stats: list leads failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := h.now()
	stats := Stats{GeneratedAt: now.UTC().Format(time.RFC3339)}
	for _, lead := range all {
		stats.ArtistID = lead.ArtistID
		stats.ConversationsStarted++
		switch lead.Status {
		case leads.StatusPendingApproval:
			stats.PendingApproval++
		case leads.StatusAwaitingDeposit:
			stats.AwaitingDeposit++
		case leads.StatusDepositPaid:
			stats.DepositsPaid++
		case leads.StatusNeedsArtistReply:
			stats.PendingHandovers++
		}
		if lead.BookedAt != nil && sameUTCDate(*lead.BookedAt, now) {
			stats.BookingsToday++
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

func sameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// actionTokenIssueRepo is the subset of leads.Repository needed to
// validate a lead exists before minting a token for it.
type actionTokenIssueRepo interface {
	GetByIDAnyArtist(ctx context.Context, id uuid.UUID) (*leads.Lead, error)
}

// tokenIssuer is the subset of actiontoken.Store the issue handler
// needs, kept narrow for the same testability reason as tokenValidator.
type tokenIssuer interface {
	Issue(ctx context.Context, leadID uuid.UUID, actionType string, requiredStatus leads.Status, expiryDays int) (*actiontoken.Token, error)
}

// ActionTokenIssueHandler lets an authenticated operator mint a new
// single-use action-token link for a lead (POST /admin/leads/{leadID}/actions/{type}).
type ActionTokenIssueHandler struct {
	tokens        tokenIssuer
	leads         actionTokenIssueRepo
	publicBaseURL string
	expiryDays    int
	logger        *logging.Logger
}

func NewActionTokenIssueHandler(tokens tokenIssuer, leadsRepo actionTokenIssueRepo, publicBaseURL string, expiryDays int, logger *logging.Logger) *ActionTokenIssueHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ActionTokenIssueHandler{tokens: tokens, leads: leadsRepo, publicBaseURL: publicBaseURL, expiryDays: expiryDays, logger: logger}
}

func (h *ActionTokenIssueHandler) Handle(w http.ResponseWriter, r *http.Request) {
	leadID, err := uuid.Parse(chi.URLParam(r, "leadID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed lead id")
		return
	}
	actionType := chi.URLParam(r, "type")
	def, ok := actionDefs[actionType]
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "unknown action type")
		return
	}

	lead, err := h.leads.GetByIDAnyArtist(r.Context(), leadID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "lead not found")
		return
	}
	if lead.Status != def.RequiredStatus {
		writeJSONError(w, http.StatusConflict, "lead is not in the required status for this action")
		return
	}

	tok, err := h.tokens.Issue(r.Context(), leadID, actionType, def.RequiredStatus, h.expiryDays)
	if err != nil {
		h.logger.Error("action token issue failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"url": h.publicBaseURL + "/a/" + tok.Value,
	})
}
