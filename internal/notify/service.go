package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkline/bookingbot/internal/ports"
	"github.com/inkline/bookingbot/pkg/logging"
)

// eventCopy holds the human-readable label for a notify event key, the
// orchestrator/correlator/sweeper's internal vocabulary (§4.5-§4.9).
var eventCopy = map[string]string{
	"handover":                  "Handover requested",
	"below_min_budget":          "Budget below minimum",
	"qualification_complete":    "Qualification complete, awaiting approval",
	"slot_selected":             "Client selected a time slot",
	"time_windows_collected":    "Client submitted availability windows",
	"deposit_paid":              "Deposit paid",
	"payment_status_mismatch":   "Payment arrived in an unexpected lead status",
	"booking_pending_follow_up": "Booking pending follow-up needed",
}

func describeEvent(event string) string {
	if label, ok := eventCopy[event]; ok {
		return label
	}
	return event
}

// ChatNotifier posts a short text notification to a generic incoming
// webhook (Slack/Discord/Teams-style `{"text": "..."}` payload).
type ChatNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewChatNotifier returns nil when webhookURL is empty, so callers can
// wire it unconditionally and let OperatorService skip the channel.
func NewChatNotifier(webhookURL string, logger *logging.Logger) *ChatNotifier {
	if webhookURL == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatNotifier{webhookURL: webhookURL, httpClient: &http.Client{Timeout: 10 * time.Second}, logger: logger}
}

func (c *ChatNotifier) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("notify: marshal chat payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: chat webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: chat webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// OperatorService implements ports.OperatorNotifier over a dual
// chat+email channel, pairing an in-channel notifier with an email
// fallback the way the teacher's notify.Service always does for
// anything operator-facing.
type OperatorService struct {
	chat           *ChatNotifier
	email          EmailSender
	operatorEmails []string
	logger         *logging.Logger
}

// NewOperatorService builds the dual-channel notifier. Either channel
// may be nil/empty; NotifyOperator degrades to whichever is configured.
func NewOperatorService(chat *ChatNotifier, email EmailSender, operatorEmails []string, logger *logging.Logger) *OperatorService {
	if logger == nil {
		logger = logging.Default()
	}
	return &OperatorService{chat: chat, email: email, operatorEmails: operatorEmails, logger: logger}
}

// NotifyOperator implements ports.OperatorNotifier.
func (s *OperatorService) NotifyOperator(ctx context.Context, leadID uuid.UUID, event string, details map[string]string) error {
	label := describeEvent(event)
	var errs []error

	if s.chat != nil {
		text := fmt.Sprintf("%s\nLead: %s\n%s", label, leadID, formatDetails(details))
		if err := s.chat.post(ctx, text); err != nil {
			s.logger.Error("notify: chat notification failed", "error", err, "event", event, "lead_id", leadID)
			errs = append(errs, err)
		}
	}

	if s.email != nil && len(s.operatorEmails) > 0 {
		subject := fmt.Sprintf("[Studio] %s", label)
		body := fmt.Sprintf("%s\n\nLead ID: %s\n%s", label, leadID, formatDetails(details))
		for _, recipient := range s.operatorEmails {
			msg := EmailMessage{To: recipient, Subject: subject, Body: body}
			if err := s.email.Send(ctx, msg); err != nil {
				s.logger.Error("notify: operator email failed", "error", err, "to", recipient, "event", event)
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d operator notification(s) failed", len(errs))
	}
	return nil
}

func formatDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}
	parts := make([]string, 0, len(details))
	for k, v := range details {
		parts = append(parts, fmt.Sprintf("%s: %s", k, v))
	}
	return strings.Join(parts, "\n")
}

var _ ports.OperatorNotifier = (*OperatorService)(nil)
