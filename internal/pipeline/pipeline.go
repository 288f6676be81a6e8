// Package pipeline stitches the stages together: list, enrich, filter,
// dedup, download, report. One Pipeline handles one harvest invocation,
// possibly spanning many sources.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clip-harvester/internal/download"
	"clip-harvester/internal/enrich"
	"clip-harvester/internal/fetcher"
	"clip-harvester/internal/filter"
	"clip-harvester/internal/listing"
	"clip-harvester/internal/model"
	"clip-harvester/internal/report"
	"clip-harvester/internal/store"
)

// Pipeline holds the wired stages for one harvest run.
type Pipeline struct {
	Store    *store.Store
	Sink     *report.Sink
	Lister   *listing.Lister
	Enricher *enrich.Enricher
	Rules    filter.Rules

	// Download configures the orchestrator stage, output directory included.
	Download download.Options

	// BaseURL resolves bare handles into source URLs.
	BaseURL string
	// MaxItems caps how many listed items are considered per source.
	MaxItems int
	Log      *logrus.Logger
}

// RunSummary is the aggregate outcome of one harvest invocation.
type RunSummary struct {
	RunID   string
	Sources int
	Counts  report.Counts
}

// Harvest processes every source in order under a single output-directory
// lock. A source that fails to list contributes zero items but does not stop
// the batch; only infrastructure failures abort.
func (p *Pipeline) Harvest(ctx context.Context, rawSources []string) (RunSummary, error) {
	if len(rawSources) == 0 {
		return RunSummary{}, fmt.Errorf("no sources given")
	}
	log := p.log()
	runID := uuid.NewString()
	runLog := log.WithField("run_id", runID)

	if err := fetcher.CheckDependencies(); err != nil {
		return RunSummary{}, err
	}

	lock, err := AcquireHarvestLock(p.Download.OutputDir, runID)
	if err != nil {
		return RunSummary{}, err
	}
	defer func() {
		_ = lock.Release()
	}()

	summary := RunSummary{RunID: runID}
	for _, raw := range rawSources {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		src, err := p.resolveSource(raw)
		if err != nil {
			runLog.WithField("source", raw).WithError(err).Warn("skipping unusable source")
			continue
		}
		if err := p.harvestSource(ctx, runLog, src); err != nil {
			return summary, err
		}
		summary.Sources++
	}
	summary.Counts = p.Sink.Total()
	return summary, nil
}

func (p *Pipeline) resolveSource(raw string) (model.Source, error) {
	key, canonical, err := listing.NormalizeSource(raw, p.BaseURL)
	if err != nil {
		return model.Source{}, err
	}
	return model.Source{Key: key, CanonicalURL: canonical}, nil
}

// harvestSource runs the full stage sequence for one source. The returned
// error is reserved for store and orchestrator infrastructure failures.
func (p *Pipeline) harvestSource(ctx context.Context, log *logrus.Entry, src model.Source) error {
	srcLog := log.WithField("source", src.Key)

	items, displayName := p.Lister.ListItems(ctx, src, p.MaxItems)
	src.DisplayName = displayName
	if err := p.Store.UpsertSource(ctx, src); err != nil {
		return fmt.Errorf("upsert source %s: %w", src.Key, err)
	}
	p.Sink.Add(src.Key, report.Counts{Listed: len(items)})
	srcLog.WithField("listed", len(items)).Info("listing complete")

	// Records left queued by an earlier run, requeued failures included, go
	// straight back into the download batch. They already passed the filters
	// once, so they skip enrichment and filtering this time around.
	leftovers, err := p.Store.ListSourceStatus(ctx, src.Key, model.StatusQueued)
	if err != nil {
		return fmt.Errorf("list queued leftovers for %s: %w", src.Key, err)
	}
	pending := make(map[string]bool, len(leftovers))
	for _, rec := range leftovers {
		pending[rec.VideoID] = true
	}

	// Dedup before enrichment so known items, hashtag skips included, never
	// cost a metadata fetch again. A listed item that matches a queued
	// leftover is carried over with its fresher metadata instead of dropped.
	fresh := make([]model.CandidateItem, 0, len(items))
	carryover := make([]model.CandidateItem, 0, len(leftovers))
	for _, item := range items {
		if pending[item.ID] {
			delete(pending, item.ID)
			carryover = append(carryover, item)
			continue
		}
		known, err := p.Store.IsKnown(ctx, src.Key, item.ID)
		if err != nil {
			return fmt.Errorf("dedup check %s/%s: %w", src.Key, item.ID, err)
		}
		if known {
			p.Sink.Add(src.Key, report.Counts{Duplicate: 1})
			continue
		}
		fresh = append(fresh, item)
	}
	for _, rec := range leftovers {
		if pending[rec.VideoID] {
			carryover = append(carryover, model.CandidateItem{
				ID:         rec.VideoID,
				Title:      rec.Title,
				WebpageURL: rec.URL,
			})
		}
	}

	if p.Rules.NeedsCaption() || p.Rules.NeedsUploadDate() {
		p.Enricher.EnrichItems(ctx, fresh, enrich.Options{
			NeedCaption: p.Rules.NeedsCaption(),
			NeedDate:    p.Rules.NeedsUploadDate(),
			Cutoff:      p.Rules.Cutoff(),
		})
	}

	queued := make([]model.CandidateItem, 0, len(fresh))
	for _, item := range fresh {
		switch filter.Passes(item, p.Rules) {
		case filter.RejectedHashtag:
			p.Sink.Add(src.Key, report.Counts{FilteredOut: 1})
			// Recorded so the next run treats it as known.
			if err := p.Store.RecordStatus(ctx, model.VideoRecord{
				SourceKey: src.Key,
				VideoID:   item.ID,
				URL:       item.WebpageURL,
				Title:     item.Title,
				Status:    model.StatusSkippedHashtag,
			}); err != nil {
				return fmt.Errorf("record hashtag skip %s/%s: %w", src.Key, item.ID, err)
			}
			continue
		case filter.RejectedDate:
			p.Sink.Add(src.Key, report.Counts{FilteredOut: 1})
			continue
		}

		if err := p.Store.RecordStatus(ctx, model.VideoRecord{
			SourceKey: src.Key,
			VideoID:   item.ID,
			URL:       item.WebpageURL,
			Title:     item.Title,
			Status:    model.StatusQueued,
		}); err != nil {
			return fmt.Errorf("queue %s/%s: %w", src.Key, item.ID, err)
		}
		queued = append(queued, item)
	}
	queued = append(queued, carryover...)

	srcLog.WithFields(logrus.Fields{
		"queued":     len(queued),
		"carryover":  len(carryover),
		"duplicates": p.Sink.Source(src.Key).Duplicate,
		"filtered":   p.Sink.Source(src.Key).FilteredOut,
	}).Info("filtering complete")
	if len(queued) == 0 {
		return nil
	}

	orchestrator := &download.Orchestrator{Store: p.Store, Sink: p.Sink, Opts: p.downloadOpts()}
	outcome, err := orchestrator.Run(ctx, src, queued)
	if err != nil {
		return fmt.Errorf("download stage for %s: %w", src.Key, err)
	}
	srcLog.WithFields(logrus.Fields{
		"succeeded": outcome.Succeeded,
		"failed":    outcome.Failed,
	}).Info("download stage complete")
	return nil
}

func (p *Pipeline) downloadOpts() download.Options {
	opts := p.Download
	if opts.Log == nil {
		opts.Log = p.log()
	}
	return opts
}

func (p *Pipeline) log() *logrus.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logrus.StandardLogger()
}
