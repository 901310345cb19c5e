package whatsapp

import (
	"context"
	"sort"

	"github.com/inkline/bookingbot/internal/ports"
	"github.com/inkline/bookingbot/pkg/logging"
)

// defaultTemplateLanguage is the approved-template language code used
// for every outbound template send. The studio currently ships
// English-only templates.
const defaultTemplateLanguage = "en"

// Notifier implements ports.Notifier over the WhatsApp Cloud API.
// When dryRun is set it logs the message instead of calling out,
// matching how instagram.Adapter.SetGraphAPIBase lets tests swap the
// API base rather than the transport itself.
type Notifier struct {
	client *Client
	dryRun bool
	logger *logging.Logger
}

// NewNotifier builds a Notifier. dryRun short-circuits the Graph API
// call and logs the outbound message instead, for local/staging runs
// without a live WhatsApp Business account.
func NewNotifier(accessToken, phoneNumberID string, dryRun bool, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{
		client: NewClient(accessToken, phoneNumberID),
		dryRun: dryRun,
		logger: logger,
	}
}

// Send implements ports.Notifier.
func (n *Notifier) Send(ctx context.Context, msg ports.OutboundMessage) (ports.SendResult, error) {
	if n.dryRun {
		n.logger.Info("whatsapp: dry-run send",
			"to", msg.To,
			"template_name", msg.TemplateName,
			"body", msg.Body,
		)
		return ports.SendResult{MessageID: "dry-run"}, nil
	}

	if msg.TemplateName != "" {
		resp, err := n.client.SendTemplate(ctx, msg.To, msg.TemplateName, defaultTemplateLanguage, orderedParams(msg.TemplateParams))
		if err != nil {
			n.logger.Error("whatsapp: template send failed", "to", msg.To, "template_name", msg.TemplateName, "error", err)
			return ports.SendResult{}, err
		}
		return resultFrom(resp), nil
	}

	resp, err := n.client.SendText(ctx, msg.To, msg.Body)
	if err != nil {
		n.logger.Error("whatsapp: text send failed", "to", msg.To, "error", err)
		return ports.SendResult{}, err
	}
	return resultFrom(resp), nil
}

func resultFrom(resp *SendResponse) ports.SendResult {
	if resp == nil || len(resp.Messages) == 0 {
		return ports.SendResult{}
	}
	return ports.SendResult{MessageID: resp.Messages[0].ID}
}

// orderedParams flattens a template-params map into a stable-ordered
// slice of values, since the Cloud API's body components bind
// positionally and map iteration order is not deterministic.
func orderedParams(params map[string]string) []string {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, params[k])
	}
	return values
}
