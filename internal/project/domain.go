package project

import (
	"fmt"
	"time"
)

// Status is the project lifecycle state.
type Status string

const (
	StatusPlanned   Status = "PLANNED"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// transitions is the single source of truth for legal status changes.
// PLANNED→ACTIVE normally happens through the quotation-accepted hook.
var transitions = map[Status][]Status{
	StatusPlanned:   {StatusActive, StatusCancelled},
	StatusActive:    {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// AllStatuses returns every project status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusPlanned, StatusActive, StatusCompleted, StatusCancelled}
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

// Project is one customer engagement, identified commercially by its job
// code.
type Project struct {
	ID         int64     `json:"id"`
	JobCode    string    `json:"job_code"`
	Name       string    `json:"name"`
	CustomerID int64     `json:"customer_id"`
	Status     Status    `json:"status"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TransitionTo applies a status change or rejects it with the offending
// pair.
func (p *Project) TransitionTo(target Status) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, string(target))
	}
	if !p.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, p.Status, target)
	}
	p.Status = target
	return nil
}
