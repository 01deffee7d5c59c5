package delivery

import (
	"fmt"
	"time"
)

// Status is the delivery lifecycle state.
type Status string

const (
	StatusPreparing Status = "PREPARING"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusReturned  Status = "RETURNED"
)

// transitions is the single source of truth for legal status changes.
// Deliveries are append-only, so RETURNED doubles as the cancellation path
// for goods that never left the warehouse. A RETURNED delivery no longer
// counts against the quoted quantities.
var transitions = map[Status][]Status{
	StatusPreparing: {StatusShipped, StatusReturned},
	StatusShipped:   {StatusDelivered, StatusReturned},
	StatusDelivered: {StatusReturned},
	StatusReturned:  {},
}

// AllStatuses returns every delivery status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusPreparing, StatusShipped, StatusDelivered, StatusReturned}
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether s -> target is a legal status change.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// CountsAsDelivered reports whether quantities in this status consume the
// quoted quota.
func (s Status) CountsAsDelivered() bool {
	return s != StatusReturned
}

// Delivery is one shipment against a project's quoted terms.
type Delivery struct {
	ID           int64      `json:"id"`
	ProjectID    int64      `json:"project_id"`
	QuotationID  *int64     `json:"quotation_id,omitempty"`
	DeliveryDate time.Time  `json:"delivery_date"`
	Status       Status     `json:"status"`
	DelivererID  int64      `json:"deliverer_id"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Lines        []LineItem `json:"lines,omitempty"`
}

// LineItem is one product quantity within a delivery.
type LineItem struct {
	ID         int64   `json:"id"`
	DeliveryID int64   `json:"delivery_id"`
	ProductID  int64   `json:"product_id"`
	Quantity   float64 `json:"quantity"`
}

// TransitionTo applies a status change or rejects it with the offending
// pair.
func (d *Delivery) TransitionTo(target Status) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, string(target))
	}
	if !d.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, d.Status, target)
	}
	d.Status = target
	return nil
}
