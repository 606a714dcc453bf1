package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/events"
	"github.com/envioex/backend-envioex/internal/order"
)

var (
	// ErrDeliveryAlreadyExists is returned when a delivery was created previously.
	ErrDeliveryAlreadyExists = errors.New("delivery already exists for order")
	// ErrOrderNotEligible is returned when the order is not in a deliverable state.
	ErrOrderNotEligible = errors.New("order status does not allow creating a delivery")
	// ErrInvalidTransition is returned when a status change would break the
	// delivery state machine.
	ErrInvalidTransition = errors.New("invalid delivery status transition")
)

// Service coordinates delivery creation, tracking updates and notifications.
type Service struct {
	Store             Store
	Orders            order.Store
	Mail              common.EmailSender
	NotifyOnDelivered bool
	Events            *events.Bus
}

// Create initialises a delivery for a purchased order and records courier
// metadata. The order moves to in_transit when the delivery is created.
func (s *Service) Create(ctx context.Context, orderID uuid.UUID, courier, tracking string) (Delivery, error) {
	if s.Store == nil || s.Orders == nil {
		return Delivery{}, errors.New("delivery stores not configured")
	}
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return Delivery{}, err
	}
	if o.Status != order.StatusPurchased && o.Status != order.StatusInTransit {
		return Delivery{}, ErrOrderNotEligible
	}
	if _, err := s.Store.GetByOrder(ctx, orderID); err == nil {
		return Delivery{}, ErrDeliveryAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return Delivery{}, err
	}
	created, err := s.Store.Create(ctx, Delivery{
		OrderID:        orderID,
		Courier:        courier,
		TrackingNumber: tracking,
		Status:         StatusPending,
	})
	if err != nil {
		return Delivery{}, err
	}
	if order.AllowedTransition(o.Status, order.StatusInTransit) {
		if _, err := s.Orders.UpdateStatus(ctx, orderID, order.StatusInTransit); err != nil && !errors.Is(err, order.ErrNotFound) {
			return created, err
		}
	}
	s.emit(ctx, events.TopicDeliveryCreated, created, nil)
	return created, nil
}

// AppendEvent records a tracking event, advances the delivery state machine
// and synchronises the order status.
func (s *Service) AppendEvent(ctx context.Context, orderID uuid.UUID, status Status, description, location string, occurredAt *time.Time, payload []byte) (Event, Delivery, error) {
	if s.Store == nil {
		return Event{}, Delivery{}, errors.New("delivery store not configured")
	}
	d, err := s.Store.GetByOrder(ctx, orderID)
	if err != nil {
		return Event{}, Delivery{}, err
	}
	if !allowedTransition(d.Status, status) {
		return Event{}, Delivery{}, ErrInvalidTransition
	}
	when := time.Now()
	if occurredAt != nil {
		when = *occurredAt
	}
	event, err := s.Store.InsertEvent(ctx, Event{
		DeliveryID:  d.ID,
		Status:      status,
		Description: description,
		Location:    location,
		OccurredAt:  when,
		RawPayload:  payload,
	})
	if err != nil {
		return Event{}, Delivery{}, err
	}
	if err := s.Store.UpdateStatus(ctx, d.ID, status, when); err != nil {
		return event, d, err
	}
	d.Status = status
	d.LastEventAt = &when
	if err := s.syncOrderStatus(ctx, orderID, status); err != nil {
		return event, d, err
	}
	if status == StatusDelivered {
		s.emit(ctx, events.TopicDeliveryDelivered, d, payload)
		s.notify(ctx, orderID)
	}
	return event, d, nil
}

func (s *Service) syncOrderStatus(ctx context.Context, orderID uuid.UUID, status Status) error {
	target, ok := deliveryToOrderStatus(status)
	if !ok {
		return nil
	}
	current, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	// Advance one hop at a time so a courier jump (shipped → delivered)
	// still walks the order through in_warehouse.
	for order.StatusRank(current.Status) < order.StatusRank(target) {
		next, ok := nextOrderStatus(current.Status)
		if !ok || !order.AllowedTransition(current.Status, next) {
			return nil
		}
		updated, err := s.Orders.UpdateStatus(ctx, orderID, next)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return nil
			}
			return err
		}
		current = updated
	}
	return nil
}

func nextOrderStatus(current order.Status) (order.Status, bool) {
	switch current {
	case order.StatusRegistered:
		return order.StatusPurchased, true
	case order.StatusPurchased:
		return order.StatusInTransit, true
	case order.StatusInTransit:
		return order.StatusInWarehouse, true
	case order.StatusInWarehouse:
		return order.StatusDelivered, true
	}
	return "", false
}

func (s *Service) notify(ctx context.Context, orderID uuid.UUID) {
	if s.Mail == nil || !s.NotifyOnDelivered {
		return
	}
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil || o.CustomerEmail == "" {
		return
	}
	_ = s.Mail.Send(o.CustomerEmail, "Pedido entregado", "Tu pedido fue entregado por el courier.")
}

func (s *Service) emit(ctx context.Context, topic string, d Delivery, raw []byte) {
	if s.Events == nil {
		return
	}
	data := map[string]any{
		"delivery_id": d.ID.String(),
		"order_id":    d.OrderID.String(),
		"status":      string(d.Status),
	}
	if len(raw) > 0 {
		data["payload"] = string(raw)
	}
	_, _ = s.Events.Emit(ctx, topic, d.ID, data)
}

// deliveryToOrderStatus maps courier progress onto the order lifecycle:
// shipped means the package left origin, out_for_delivery means it reached
// the local warehouse leg, delivered closes the order.
func deliveryToOrderStatus(status Status) (order.Status, bool) {
	switch status {
	case StatusShipped:
		return order.StatusInTransit, true
	case StatusOutForDelivery:
		return order.StatusInWarehouse, true
	case StatusDelivered:
		return order.StatusDelivered, true
	}
	return "", false
}
