package order

import "strings"

// Status is the order lifecycle state.
type Status string

const (
	StatusRegistered  Status = "registered"
	StatusPurchased   Status = "purchased"
	StatusInTransit   Status = "in_transit"
	StatusInWarehouse Status = "in_warehouse"
	StatusDelivered   Status = "delivered"
	StatusCanceled    Status = "canceled"
)

// ParseStatus normalizes a status label. It reports false for unknown labels.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusRegistered:
		return StatusRegistered, true
	case StatusPurchased:
		return StatusPurchased, true
	case StatusInTransit:
		return StatusInTransit, true
	case StatusInWarehouse:
		return StatusInWarehouse, true
	case StatusDelivered:
		return StatusDelivered, true
	case StatusCanceled:
		return StatusCanceled, true
	}
	return "", false
}

// AllowedTransition reports whether an order may move from current to next.
// Orders advance one hop at a time and can only be canceled before purchase.
func AllowedTransition(current, next Status) bool {
	if current == next {
		return true
	}
	switch current {
	case StatusRegistered:
		return next == StatusPurchased || next == StatusCanceled
	case StatusPurchased:
		return next == StatusInTransit
	case StatusInTransit:
		return next == StatusInWarehouse
	case StatusInWarehouse:
		return next == StatusDelivered
	default:
		return false
	}
}

// StatusRank orders the forward-moving statuses; terminal failure states rank
// negative so they never win a monotonic comparison.
func StatusRank(status Status) int {
	switch status {
	case StatusRegistered:
		return 0
	case StatusPurchased:
		return 1
	case StatusInTransit:
		return 2
	case StatusInWarehouse:
		return 3
	case StatusDelivered:
		return 4
	case StatusCanceled:
		return -1
	default:
		return -2
	}
}
