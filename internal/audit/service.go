package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"time"
)

// exportLimit caps CSV exports. Reviewers narrow by entity or date range
// when they need more history than one file carries.
const exportLimit = 10000

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Timeline returns one page of audit entries plus the total match count.
func (s *Service) Timeline(ctx context.Context, filter TimelineFilter) ([]TimelineEntry, int, error) {
	return s.repo.Timeline(ctx, filter)
}

// WriteCSV streams matching entries to w as CSV, newest first. Actor
// columns stay empty for worker-written entries and meta is emitted as
// the stored JSON document.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, filter TimelineFilter) error {
	entries, err := s.repo.TimelineAll(ctx, filter, exportLimit)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "occurred_at", "actor_id", "actor_email", "action", "entity", "entity_id", "meta"}); err != nil {
		return err
	}
	for _, e := range entries {
		actorID := ""
		if e.ActorID > 0 {
			actorID = strconv.FormatInt(e.ActorID, 10)
		}
		meta := ""
		if len(e.Meta) > 0 {
			raw, err := json.Marshal(e.Meta)
			if err != nil {
				return err
			}
			meta = string(raw)
		}
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.OccurredAt.UTC().Format(time.RFC3339),
			actorID,
			e.ActorEmail,
			e.Action,
			e.Entity,
			strconv.FormatInt(e.EntityID, 10),
			meta,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "audit export written", slog.Int("rows", len(entries)))
	return nil
}
