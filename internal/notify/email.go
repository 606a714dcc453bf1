package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/events"
)

// recipientKeys are tried in order when pulling the destination address out
// of an event payload.
var recipientKeys = []string{"email", "recipient", "userEmail", "customerEmail"}

// emailSubjects maps event topics to customer-facing subject lines.
var emailSubjects = map[string]string{
	events.TopicOrderRegistered:   "Pedido registrado",
	events.TopicOrderPurchased:    "Compra realizada",
	events.TopicOrderCanceled:     "Pedido cancelado",
	events.TopicDeliveryCreated:   "Envío en camino",
	events.TopicDeliveryDelivered: "Pedido entregado",
	events.TopicInvoiceCreated:    "Factura emitida",
}

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	From         string
	TopicToggles map[string]bool
}

// Notify implements the events.Notifier interface. Events without a
// resolvable recipient are skipped rather than failed.
func (n EmailNotifier) Notify(_ context.Context, event events.Event) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
		return nil
	}

	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := recipientFrom(payload)
	if to == "" {
		return nil
	}
	return n.Mail.Send(to, subjectFor(event.Topic), bodyFor(event.Topic, payload, event.OccurredAt))
}

func recipientFrom(payload map[string]any) string {
	for _, key := range recipientKeys {
		if s, ok := payload[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	if subject, ok := emailSubjects[topic]; ok {
		return subject
	}
	return "Notificación " + topic
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Evento %s registrado el %s.", topic, occurred.Format(time.RFC3339))
	if orderID, ok := payload["orderId"].(string); ok && orderID != "" {
		fmt.Fprintf(&sb, "\nPedido: %s", orderID)
	}
	if tracking, ok := payload["tracking"].(string); ok && tracking != "" {
		fmt.Fprintf(&sb, "\nGuía de rastreo: %s", tracking)
	}
	if note, ok := payload["message"].(string); ok && note != "" {
		sb.WriteString("\n" + note)
	}
	return sb.String()
}
