// Package enrich fetches full per-item metadata (caption text, upload date)
// on demand. Enrichment is lazy and bounded: the prefilter only pays for it
// on items that actually need it.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"clip-harvester/internal/fetcher"
	"clip-harvester/internal/model"
	"clip-harvester/internal/retry"
)

type Enricher struct {
	CookiesFromBrowser string
	Timeout            time.Duration
	Attempts           int
	Workers            int
	Log                *logrus.Logger
}

type fullMetadata struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Fulltitle   string `json:"fulltitle"`
	Description string `json:"description"`
	Uploader    string `json:"uploader"`
	Channel     string `json:"channel"`
	UploadDate  string `json:"upload_date"`
	WebpageURL  string `json:"webpage_url"`
}

// FetchCaption returns the caption text for an item, or empty when the
// platform has none.
func (e *Enricher) FetchCaption(ctx context.Context, item model.CandidateItem) (string, error) {
	meta, err := e.fetchMetadata(ctx, item.WebpageURL)
	if err != nil {
		return "", err
	}
	return captionFrom(meta), nil
}

// FetchUploadDate returns the normalized ISO upload date, or empty when the
// platform does not report one.
func (e *Enricher) FetchUploadDate(ctx context.Context, item model.CandidateItem) (string, error) {
	meta, err := e.fetchMetadata(ctx, item.WebpageURL)
	if err != nil {
		return "", err
	}
	return model.NormalizeUploadDate(meta.UploadDate), nil
}

// Options bound the cost of a bulk enrichment pass.
type Options struct {
	NeedCaption bool
	NeedDate    bool
	// MaxItems caps how many items are enriched; 0 means all.
	MaxItems int
	// Cutoff enables the early stop: once an enriched item's date falls
	// before it, remaining items are left untouched. Listings are assumed
	// near-chronological, so this is a cost heuristic, not a correctness
	// guarantee.
	Cutoff time.Time
}

// EnrichItems fills captions and upload dates in place for items that are
// missing them. Individual fetch failures leave the item unenriched; they do
// not abort the pass.
func (e *Enricher) EnrichItems(ctx context.Context, items []model.CandidateItem, opts Options) {
	if !opts.NeedCaption && !opts.NeedDate {
		return
	}

	workers := e.Workers
	if workers <= 0 {
		workers = 2
	}

	budget := opts.MaxItems
	if budget <= 0 {
		budget = len(items)
	}

	var stop atomic.Bool
	idxCh := make(chan int)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for i := range idxCh {
			if stop.Load() {
				continue
			}
			item := &items[i]
			meta, err := e.fetchMetadata(ctx, item.WebpageURL)
			if err != nil {
				e.logf("enrichment failed for %s: %v", item.ID, err)
				continue
			}
			if opts.NeedCaption && !item.CaptionKnown {
				item.Caption = captionFrom(meta)
				item.CaptionKnown = true
			}
			if item.UploadDate == "" {
				item.UploadDate = model.NormalizeUploadDate(meta.UploadDate)
			}
			if !opts.Cutoff.IsZero() && item.UploadDate != "" {
				if model.ParseUploadDate(item.UploadDate).Before(opts.Cutoff) {
					stop.Store(true)
				}
			}
		}
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go worker()
	}

	dispatched := 0
	for i := range items {
		if stop.Load() || dispatched >= budget {
			break
		}
		if !needsEnrichment(items[i], opts) {
			continue
		}
		idxCh <- i
		dispatched++
	}
	close(idxCh)
	wg.Wait()
}

func needsEnrichment(item model.CandidateItem, opts Options) bool {
	if opts.NeedCaption && !item.CaptionKnown {
		return true
	}
	if opts.NeedDate && item.UploadDate == "" {
		return true
	}
	return false
}

func (e *Enricher) fetchMetadata(ctx context.Context, videoURL string) (fullMetadata, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	attempts := e.Attempts
	if attempts <= 0 {
		attempts = 3
	}

	var meta fullMetadata
	err := retry.Do(ctx, retry.Policy{MaxAttempts: attempts, BaseDelay: 2 * time.Second}, func(ctx context.Context) error {
		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		raw, err := fetcher.MetadataJSON(fetchCtx, fetcher.MetadataOptions{
			VideoURL:           videoURL,
			CookiesFromBrowser: e.CookiesFromBrowser,
		})
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("parse metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return fullMetadata{}, err
	}
	return meta, nil
}

// captionFrom prefers the full description so long captions are not
// truncated to the title.
func captionFrom(meta fullMetadata) string {
	for _, v := range []string{meta.Description, meta.Title, meta.Fulltitle} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (e *Enricher) logf(format string, args ...any) {
	if e.Log != nil {
		e.Log.Errorf(format, args...)
	}
}
