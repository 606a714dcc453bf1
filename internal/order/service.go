package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/events"
	"github.com/envioex/backend-envioex/internal/product"
)

// ErrInvalidTransition is returned when a status change would break the order
// state machine.
var ErrInvalidTransition = errors.New("order: invalid status transition")

// Service coordinates order lifecycle changes and notifications.
type Service struct {
	Store             Store
	Products          product.Store
	Mail              common.EmailSender
	NotifyOnPurchased bool
	NotifyOnDelivered bool
	Events            *events.Bus
}

// Detail is an order joined with its product line items.
type Detail struct {
	Order
	Products []product.Product `json:"products"`
}

// Register creates a new order in the registered state.
func (s *Service) Register(ctx context.Context, customerName, customerEmail, notes string) (Order, error) {
	if customerName == "" {
		return Order{}, common.NewAppError("VALIDATION_ERROR", "customer_name is required", 400, nil)
	}
	created, err := s.Store.Insert(ctx, Order{
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Status:        StatusRegistered,
		Notes:         notes,
	})
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	s.emit(ctx, events.TopicOrderRegistered, created)
	return created, nil
}

// SetStatus moves an order through the state machine, rejecting transitions
// the table does not allow.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, next Status) (Order, error) {
	current, err := s.Store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !AllowedTransition(current.Status, next) {
		return Order{}, ErrInvalidTransition
	}
	if current.Status == next {
		return current, nil
	}
	updated, err := s.Store.UpdateStatus(ctx, id, next)
	if err != nil {
		return Order{}, err
	}
	s.emit(ctx, statusTopic(next), updated)
	s.notify(updated, next)
	return updated, nil
}

// Cancel aborts an order. Only pre-purchase orders can be canceled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.SetStatus(ctx, id, StatusCanceled)
}

// Get fetches an order with its product line items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Detail, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	detail := Detail{Order: o}
	if s.Products != nil {
		products, err := s.Products.ListByOrder(ctx, id)
		if err != nil {
			return Detail{}, fmt.Errorf("list order products: %w", err)
		}
		detail.Products = products
	}
	return detail, nil
}

// List returns a page of orders plus the overall count.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Order, int64, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	orders, err := s.Store.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateDetails changes the customer fields without touching the status.
func (s *Service) UpdateDetails(ctx context.Context, in Order) (Order, error) {
	if in.CustomerName == "" {
		return Order{}, common.NewAppError("VALIDATION_ERROR", "customer_name is required", 400, nil)
	}
	return s.Store.UpdateDetails(ctx, in)
}

func statusTopic(status Status) string {
	switch status {
	case StatusPurchased:
		return events.TopicOrderPurchased
	case StatusCanceled:
		return events.TopicOrderCanceled
	default:
		return events.TopicOrderStatusMoved
	}
}

func (s *Service) emit(ctx context.Context, topic string, o Order) {
	if s.Events == nil || topic == "" {
		return
	}
	_, _ = s.Events.Emit(ctx, topic, o.ID, map[string]any{
		"order_id": o.ID.String(),
		"status":   string(o.Status),
		"customer": o.CustomerName,
	})
}

func (s *Service) notify(o Order, status Status) {
	if s.Mail == nil || o.CustomerEmail == "" {
		return
	}
	switch status {
	case StatusPurchased:
		if !s.NotifyOnPurchased {
			return
		}
	case StatusDelivered:
		if !s.NotifyOnDelivered {
			return
		}
	default:
		return
	}
	subject, body := notificationContent(status)
	_ = s.Mail.Send(o.CustomerEmail, subject, body)
}

func notificationContent(status Status) (string, string) {
	switch status {
	case StatusPurchased:
		return "Compra realizada", "Tu pedido fue comprado y está en preparación."
	case StatusDelivered:
		return "Pedido entregado", "Tu pedido fue entregado. ¡Gracias por tu compra!"
	default:
		return "", ""
	}
}
