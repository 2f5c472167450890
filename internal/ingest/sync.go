package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SyncResult summarizes one database synchronization run.
type SyncResult struct {
	Synced   int           `json:"synced"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// SyncDatabase ingests every page of a Notion database. Per-page failures are
// logged and counted but do not stop the run; only listing the database or a
// canceled context aborts it.
func (i *Ingestor) SyncDatabase(ctx context.Context, databaseID string) (*SyncResult, error) {
	start := time.Now()

	pages, err := i.source.QueryDatabase(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("listing database %s: %w", databaseID, err)
	}

	result := &SyncResult{}
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		switch err := i.IngestPage(ctx, page); {
		case errors.Is(err, ErrEmptyPage):
			result.Skipped++
		case err != nil:
			result.Failed++
			i.logger.Error("page sync failed", "page_id", page.ID, "error", err)
		default:
			result.Synced++
		}
	}

	result.Duration = time.Since(start)
	i.logger.Info("database sync completed",
		"database_id", databaseID,
		"synced", result.Synced,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration)
	return result, nil
}
