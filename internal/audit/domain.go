// Package audit is the read side of the audit trail written by
// shared.AuditLogger. It serves the timeline queries reviewers use to
// reconstruct who moved a document and when.
package audit

import "time"

// TimelineEntry is one audit record joined with the actor's email. Actor
// is empty for entries written by background workers.
type TimelineEntry struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actorId"`
	ActorEmail string         `json:"actorEmail,omitempty"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   int64          `json:"entityId"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// TimelineFilter narrows timeline queries. Zero values mean "no filter".
type TimelineFilter struct {
	Entity   string
	EntityID int64
	ActorID  int64
	Action   string
	From     time.Time
	To       time.Time
	Page     int
	PerPage  int
}
