package delivery

import "strings"

// Status is the courier-facing delivery state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusPicked         Status = "picked"
	StatusShipped        Status = "shipped"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
)

// MapExternalToStatus converts courier status labels into internal delivery
// statuses. Unrecognised labels map to pending.
func MapExternalToStatus(external string) Status {
	switch strings.ToLower(strings.TrimSpace(external)) {
	case "picked", "pickup":
		return StatusPicked
	case "shipped", "in_transit", "in-transit":
		return StatusShipped
	case "out_for_delivery", "out-for-delivery":
		return StatusOutForDelivery
	case "delivered":
		return StatusDelivered
	}
	return StatusPending
}

func allowedTransition(current, next Status) bool {
	if current == next {
		return true
	}
	switch current {
	case StatusPending:
		return next == StatusPicked || next == StatusShipped
	case StatusPicked:
		return next == StatusShipped
	case StatusShipped:
		return next == StatusOutForDelivery || next == StatusDelivered
	case StatusOutForDelivery:
		return next == StatusDelivered
	default:
		return false
	}
}
