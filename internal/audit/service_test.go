package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAuditRepo struct {
	entries []TimelineEntry
}

func (m *memAuditRepo) matches(filter TimelineFilter) []TimelineEntry {
	var out []TimelineEntry
	for _, e := range m.entries {
		if filter.Entity != "" && e.Entity != filter.Entity {
			continue
		}
		if filter.EntityID > 0 && e.EntityID != filter.EntityID {
			continue
		}
		if filter.ActorID > 0 && e.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if !filter.From.IsZero() && e.OccurredAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.OccurredAt.Before(filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *memAuditRepo) Timeline(ctx context.Context, filter TimelineFilter) ([]TimelineEntry, int, error) {
	matched := m.matches(filter)
	total := len(matched)
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *memAuditRepo) TimelineAll(ctx context.Context, filter TimelineFilter, limit int) ([]TimelineEntry, error) {
	matched := m.matches(filter)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func auditFixture() (*Service, *memAuditRepo) {
	repo := &memAuditRepo{}
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func sampleEntries() []TimelineEntry {
	at := time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC)
	return []TimelineEntry{
		{
			ID: 3, ActorID: 7, ActorEmail: "sales@wellkorea.example",
			Action: "quotation.submitted", Entity: "quotation", EntityID: 41,
			Meta:       map[string]any{"version": float64(2)},
			OccurredAt: at.Add(2 * time.Hour),
		},
		{
			ID: 2, ActorID: 7, ActorEmail: "sales@wellkorea.example",
			Action: "quotation.created", Entity: "quotation", EntityID: 41,
			OccurredAt: at.Add(time.Hour),
		},
		{
			ID: 1, Action: "quotation.sent", Entity: "quotation", EntityID: 40,
			OccurredAt: at,
		},
	}
}

func TestService_Timeline(t *testing.T) {
	svc, repo := auditFixture()
	repo.entries = sampleEntries()

	t.Run("filters by entity id", func(t *testing.T) {
		items, total, err := svc.Timeline(context.Background(), TimelineFilter{Entity: "quotation", EntityID: 41})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, items, 2)
		assert.Equal(t, "quotation.submitted", items[0].Action)
	})

	t.Run("pages results", func(t *testing.T) {
		items, total, err := svc.Timeline(context.Background(), TimelineFilter{Page: 2, PerPage: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, items, 1)
		assert.Equal(t, int64(1), items[0].ID)
	})
}

func TestService_WriteCSV(t *testing.T) {
	svc, repo := auditFixture()
	repo.entries = sampleEntries()

	var buf bytes.Buffer
	require.NoError(t, svc.WriteCSV(context.Background(), &buf, TimelineFilter{}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, []string{"id", "occurred_at", "actor_id", "actor_email", "action", "entity", "entity_id", "meta"}, records[0])

	first := records[1]
	assert.Equal(t, "3", first[0])
	assert.Equal(t, "2026-05-12T11:30:00Z", first[1])
	assert.Equal(t, "7", first[2])
	assert.Equal(t, "sales@wellkorea.example", first[3])
	assert.JSONEq(t, `{"version": 2}`, first[7])

	// Worker-written entries carry no actor.
	worker := records[3]
	assert.Equal(t, "", worker[2])
	assert.Equal(t, "", worker[3])
	assert.Equal(t, "quotation.sent", worker[4])
	assert.Equal(t, "", worker[7])
}

func TestService_WriteCSV_Empty(t *testing.T) {
	svc, _ := auditFixture()

	var buf bytes.Buffer
	require.NoError(t, svc.WriteCSV(context.Background(), &buf, TimelineFilter{Entity: "invoice"}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}
