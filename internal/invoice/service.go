package invoice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/events"
)

// Service orchestrates invoice persistence, keeping the derived total in
// lockstep with the tags at every mutation point.
type Service struct {
	Store  Store
	Events *events.Bus
}

// Create persists a new invoice. Creation requires at least one valid tag.
func (s *Service) Create(ctx context.Context, date time.Time, tags []Tag) (Invoice, error) {
	if len(tags) == 0 {
		return Invoice{}, common.NewAppError("VALIDATION_ERROR", "at least one tag is required", http.StatusBadRequest, nil)
	}
	prepared, total, err := recompute(tags)
	if err != nil {
		return Invoice{}, err
	}
	created, err := s.store().Insert(ctx, Invoice{Date: date, Tags: prepared, Total: total})
	if err != nil {
		return Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	s.emit(ctx, events.TopicInvoiceCreated, created)
	return created, nil
}

// Update replaces the invoice date and tag list. Unlike creation, an empty
// tag list is accepted here; the total then recomputes to zero.
func (s *Service) Update(ctx context.Context, id uuid.UUID, date time.Time, tags []Tag) (Invoice, error) {
	prepared, total, err := recompute(tags)
	if err != nil {
		return Invoice{}, err
	}
	updated, err := s.store().Update(ctx, Invoice{ID: id, Date: date, Tags: prepared, Total: total})
	if err != nil {
		return Invoice{}, err
	}
	s.emit(ctx, events.TopicInvoiceUpdated, updated)
	return updated, nil
}

// AddTag appends a tag to an existing invoice and recomputes its total.
func (s *Service) AddTag(ctx context.Context, id uuid.UUID, tag Tag) (Invoice, error) {
	current, err := s.store().Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	return s.writeTags(ctx, current, append(current.Tags, tag))
}

// UpdateTag replaces the identified tag and recomputes the total.
func (s *Service) UpdateTag(ctx context.Context, id uuid.UUID, tagID string, tag Tag) (Invoice, error) {
	current, err := s.store().Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	replaced := false
	tags := make([]Tag, 0, len(current.Tags))
	for _, existing := range current.Tags {
		if existing.ID == tagID {
			tag.ID = tagID
			tags = append(tags, tag)
			replaced = true
			continue
		}
		tags = append(tags, existing)
	}
	if !replaced {
		return Invoice{}, common.NewAppError("NOT_FOUND", "tag not found", http.StatusNotFound, nil)
	}
	return s.writeTags(ctx, current, tags)
}

// RemoveTag drops the identified tag and recomputes the total.
func (s *Service) RemoveTag(ctx context.Context, id uuid.UUID, tagID string) (Invoice, error) {
	current, err := s.store().Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	tags := make([]Tag, 0, len(current.Tags))
	removed := false
	for _, existing := range current.Tags {
		if existing.ID == tagID {
			removed = true
			continue
		}
		tags = append(tags, existing)
	}
	if !removed {
		return Invoice{}, common.NewAppError("NOT_FOUND", "tag not found", http.StatusNotFound, nil)
	}
	return s.writeTags(ctx, current, tags)
}

// Get fetches a single invoice by identifier.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return s.store().Get(ctx, id)
}

// List returns a page of invoices plus the overall count.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Invoice, int64, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	invoices, err := s.store().List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store().Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// Delete removes an invoice.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store().Delete(ctx, id)
}

func (s *Service) writeTags(ctx context.Context, current Invoice, tags []Tag) (Invoice, error) {
	prepared, total, err := recompute(tags)
	if err != nil {
		return Invoice{}, err
	}
	updated, err := s.store().Update(ctx, Invoice{ID: current.ID, Date: current.Date, Tags: prepared, Total: total})
	if err != nil {
		return Invoice{}, err
	}
	s.emit(ctx, events.TopicInvoiceUpdated, updated)
	return updated, nil
}

// recompute normalizes and validates every tag, assigns identifiers to new
// ones, and derives the authoritative rounded total. The stored total is
// always the output of this function, never a caller-supplied value.
func recompute(tags []Tag) ([]Tag, Decimal, error) {
	prepared := make([]Tag, 0, len(tags))
	for i, tag := range tags {
		normalized := tag.Normalize()
		if err := ValidateTag(normalized); err != nil {
			return nil, Decimal{}, common.NewAppError("VALIDATION_ERROR", fmt.Sprintf("tag %d: %v", i, err), http.StatusBadRequest, err)
		}
		if normalized.ID == "" {
			normalized.ID = uuid.NewString()
		}
		prepared = append(prepared, normalized)
	}
	total := Total(prepared)
	if err := CheckPrecision(total); err != nil {
		return nil, Decimal{}, common.NewAppError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest, err)
	}
	return prepared, total, nil
}

func (s *Service) store() Store {
	if s.Store == nil {
		return &pgStore{}
	}
	return s.Store
}

func (s *Service) emit(ctx context.Context, topic string, inv Invoice) {
	if s.Events == nil {
		return
	}
	_, _ = s.Events.Emit(ctx, topic, inv.ID, map[string]any{
		"invoice_id": inv.ID.String(),
		"total":      inv.Total.StringFixed(2),
		"tag_count":  len(inv.Tags),
	})
}
