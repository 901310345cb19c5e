package httpapi

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkline/bookingbot/internal/actiontoken"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/ports"
	"github.com/inkline/bookingbot/pkg/logging"
)

// actionDef binds an action type to the status transition it performs
// and the message the client is sent once it commits.
type actionDef struct {
	RequiredStatus leads.Status
	TargetStatus   leads.Status
	MessageKey     string
	Label          string
}

var actionDefs = map[string]actionDef{
	"approve": {
		RequiredStatus: leads.StatusPendingApproval,
		TargetStatus:   leads.StatusAwaitingDeposit,
		MessageKey:     "deposit_request",
		Label:          "Approve design and request deposit",
	},
	"reject": {
		RequiredStatus: leads.StatusPendingApproval,
		TargetStatus:   leads.StatusRejected,
		MessageKey:     "rejected",
		Label:          "Decline this request",
	},
	"mark_booked": {
		RequiredStatus: leads.StatusBookingPending,
		TargetStatus:   leads.StatusBooked,
		MessageKey:     "booking_confirmed",
		Label:          "Mark appointment as booked",
	},
}

// actionLeadRepo is the subset of leads.Repository the action-token
// handler needs: an unscoped lookup (the token itself is the
// authorization), the optimistic conditional status update, and the
// partial-field write the approve action uses to persist the checkout
// session it opens.
type actionLeadRepo interface {
	GetByIDAnyArtist(ctx context.Context, id uuid.UUID) (*leads.Lead, error)
	UpdateStatusIfMatches(ctx context.Context, leadID uuid.UUID, expected, to leads.Status) (bool, *leads.Lead, error)
	UpdateFields(ctx context.Context, leadID uuid.UUID, f leads.Fields) error
}

// actionOutbox is the subset of events.OutboxStore the handler needs
// to send the post-action message to the client.
type actionOutbox interface {
	Enqueue(ctx context.Context, orgID string, leadID *uuid.UUID, channel, eventType string, payload any) (uuid.UUID, error)
}

// tokenValidator is the subset of actiontoken.Store the confirm/execute
// pair needs. Declared as an interface (rather than depending on the
// concrete pgx-backed Store) so the HTTP layer is testable without a
// database, matching the capability-interface style of OutboxEnqueuer
// and ProcessedEventStore elsewhere in this codebase.
type tokenValidator interface {
	Validate(ctx context.Context, value string, currentLeadStatus leads.Status) (*actiontoken.Token, error)
	Claim(ctx context.Context, value string) (bool, error)
}

var confirmTemplate = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html>
<head><title>Confirm action</title></head>
<body>
<h1>{{.Label}}</h1>
<p>Lead phone: {{.Phone}}</p>
<p>Current status: {{.Status}}</p>
<form method="POST">
<button type="submit">Confirm</button>
</form>
</body>
</html>`))

var expiredTemplate = template.Must(template.New("expired").Parse(`<!DOCTYPE html>
<html><body><h1>{{.Message}}</h1></body></html>`))

// ActionTokenHandler implements the GET confirm / POST execute pair at
// <base>/a/<token> (§6). GET renders a small confirmation page — using
// html/template rather than the teacher's raw-string HTML constant
// (internal/conversation/handler.go), since this page interpolates
// lead-derived data and must escape it. POST performs the bound
// status transition via the atomic single-use token claim.
type ActionTokenHandler struct {
	tokens   tokenValidator
	leads    actionLeadRepo
	outbox   actionOutbox
	copy     ports.CopyRenderer
	checkout ports.CheckoutSessionCreator
	logger   *logging.Logger
}

func NewActionTokenHandler(tokens tokenValidator, leadsRepo actionLeadRepo, outbox actionOutbox, copyRenderer ports.CopyRenderer, checkout ports.CheckoutSessionCreator, logger *logging.Logger) *ActionTokenHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ActionTokenHandler{tokens: tokens, leads: leadsRepo, outbox: outbox, copy: copyRenderer, checkout: checkout, logger: logger}
}

type confirmViewData struct {
	Label  string
	Phone  string
	Status leads.Status
}

// HandleConfirm renders the GET confirmation view.
func (h *ActionTokenHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	value := chi.URLParam(r, "token")
	lead, def, err := h.validate(r.Context(), value)
	if err != nil {
		h.renderError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = confirmTemplate.Execute(w, confirmViewData{Label: def.Label, Phone: lead.Phone, Status: lead.Status})
}

// HandleExecute performs the POST action: atomic claim then status
// transition, then a best-effort outbound send of the result message.
func (h *ActionTokenHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	value := chi.URLParam(r, "token")

	lead, def, err := h.validate(ctx, value)
	if err != nil {
		h.renderError(w, err)
		return
	}

	claimed, err := h.tokens.Claim(ctx, value)
	if err != nil {
		h.logger.Error("action token: claim failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !claimed {
		writeJSONError(w, http.StatusConflict, "token already used")
		return
	}

	matched, updated, err := h.leads.UpdateStatusIfMatches(ctx, lead.ID, def.RequiredStatus, def.TargetStatus)
	if err != nil {
		h.logger.Error("action token: status update failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !matched {
		writeJSONError(w, http.StatusConflict, "lead status changed before the action could be applied")
		return
	}

	params := map[string]string{}
	if def.TargetStatus == leads.StatusAwaitingDeposit && h.checkout != nil {
		session, cerr := h.checkout.CreateCheckoutSession(ctx, updated, updated.DepositAmountPence, map[string]string{"artist_id": updated.ArtistID})
		if cerr != nil {
			h.logger.Error("action token: checkout session creation failed", "error", cerr, "lead_id", updated.ID)
		} else {
			params["checkout_url"] = session.URL
			if ferr := h.leads.UpdateFields(ctx, updated.ID, leads.Fields{CheckoutSessionID: &session.SessionID}); ferr != nil {
				h.logger.Error("action token: persisting checkout session id failed", "error", ferr, "lead_id", updated.ID)
			}
		}
	}

	if h.copy != nil && h.outbox != nil {
		body, err := h.copy.Render(def.MessageKey, updated, params)
		if err != nil {
			h.logger.Warn("action token: copy render failed", "error", err, "message_key", def.MessageKey)
		} else if body != "" {
			if _, err := h.outbox.Enqueue(ctx, updated.ArtistID, &updated.ID, "whatsapp", "message", map[string]string{"to": updated.Phone, "body": body}); err != nil {
				h.logger.Error("action token: outbox enqueue failed", "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"executed": true, "lead_id": updated.ID.String(), "status": updated.Status})
}

func (h *ActionTokenHandler) validate(ctx context.Context, value string) (*leads.Lead, actionDef, error) {
	tok, err := h.tokens.Validate(ctx, value, "")
	if err != nil && !errors.Is(err, actiontoken.ErrStatusMismatch) {
		return nil, actionDef{}, err
	}
	if tok == nil {
		return nil, actionDef{}, actiontoken.ErrTokenNotFound
	}
	lead, lerr := h.leads.GetByIDAnyArtist(ctx, tok.LeadID)
	if lerr != nil {
		return nil, actionDef{}, lerr
	}
	def, ok := actionDefs[tok.ActionType]
	if !ok {
		return nil, actionDef{}, errors.New("actiontoken: unknown action type")
	}
	if _, verr := h.tokens.Validate(ctx, value, lead.Status); verr != nil {
		return lead, def, verr
	}
	return lead, def, nil
}

func (h *ActionTokenHandler) renderError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	message := "This link is no longer valid."
	switch {
	case errors.Is(err, actiontoken.ErrTokenNotFound):
		status = http.StatusNotFound
		message = "This link does not exist."
	case errors.Is(err, actiontoken.ErrTokenUsed):
		message = "This link has already been used."
	case errors.Is(err, actiontoken.ErrTokenExpired):
		message = "This link has expired."
	case errors.Is(err, actiontoken.ErrStatusMismatch):
		message = "This lead's status has since changed; the action no longer applies."
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = expiredTemplate.Execute(w, map[string]string{"Message": message})
}
