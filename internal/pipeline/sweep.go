package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"clip-harvester/internal/fetcher"
	"clip-harvester/internal/filter"
	"clip-harvester/internal/model"
	"clip-harvester/internal/store"
)

// SweepResult summarizes one duration sweep over downloaded files.
type SweepResult struct {
	Checked int
	Deleted int
	Missing int
	Kept    int
}

// Sweep probes every successfully downloaded file against the duration
// bounds and deletes the media/caption pair for files outside them. Deleted
// records keep their identity so the videos are never re-downloaded; only
// the paths are cleared. Files that vanished from disk are counted but left
// as success records for the operator to inspect.
func Sweep(ctx context.Context, s *store.Store, bounds filter.DurationBounds, log *logrus.Logger) (SweepResult, error) {
	if !bounds.Enabled() {
		return SweepResult{}, fmt.Errorf("sweep needs at least one duration bound")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	records, err := s.ListByStatus(ctx, model.StatusSuccess)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list downloaded records: %w", err)
	}

	var result SweepResult
	for _, rec := range records {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if rec.FilePath == "" {
			continue
		}
		result.Checked++
		recLog := log.WithFields(logrus.Fields{
			"source":   rec.SourceKey,
			"video_id": rec.VideoID,
		})

		if _, statErr := os.Stat(rec.FilePath); statErr != nil {
			result.Missing++
			recLog.WithField("path", rec.FilePath).Warn("recorded file is missing from disk")
			continue
		}

		probe, probeErr := fetcher.Probe(ctx, rec.FilePath)
		duration := 0
		if probeErr == nil {
			duration = probe.DurationSeconds
		} else {
			recLog.WithError(probeErr).Warn("probe failed, treating duration as unknown")
		}
		if bounds.Within(duration) {
			result.Kept++
			continue
		}

		if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
			return result, fmt.Errorf("delete %s: %w", rec.FilePath, err)
		}
		if rec.CaptionPath != "" {
			if err := os.Remove(rec.CaptionPath); err != nil && !os.IsNotExist(err) {
				return result, fmt.Errorf("delete %s: %w", rec.CaptionPath, err)
			}
		}
		if err := s.RecordStatus(ctx, model.VideoRecord{
			SourceKey: rec.SourceKey,
			VideoID:   rec.VideoID,
			URL:       rec.URL,
			Title:     rec.Title,
			Status:    model.StatusDeleted,
		}); err != nil {
			return result, fmt.Errorf("mark deleted %s/%s: %w", rec.SourceKey, rec.VideoID, err)
		}
		if err := s.ClearPaths(ctx, rec.SourceKey, rec.VideoID); err != nil {
			return result, fmt.Errorf("clear paths %s/%s: %w", rec.SourceKey, rec.VideoID, err)
		}
		result.Deleted++
		recLog.WithField("duration_s", duration).Info("removed file outside duration bounds")
	}
	return result, nil
}
