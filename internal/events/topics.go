package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderRegistered   = "order.registered"
	TopicOrderPurchased    = "order.purchased"
	TopicOrderCanceled     = "order.canceled"
	TopicOrderStatusMoved  = "order.status_moved"
	TopicDeliveryCreated   = "delivery.created"
	TopicDeliveryDelivered = "delivery.delivered"
	TopicInvoiceCreated    = "invoice.created"
	TopicInvoiceUpdated    = "invoice.updated"
	TopicSettingsChanged   = "settings.changed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderRegistered,
		TopicOrderPurchased,
		TopicOrderCanceled,
		TopicOrderStatusMoved,
		TopicDeliveryCreated,
		TopicDeliveryDelivered,
		TopicInvoiceCreated,
		TopicInvoiceUpdated,
		TopicSettingsChanged,
	}
}
