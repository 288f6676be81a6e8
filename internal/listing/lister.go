// Package listing turns a creator or tag identifier into an ordered set of
// candidate items using the external fetcher's flat manifest.
package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"clip-harvester/internal/fetcher"
	"clip-harvester/internal/model"
	"clip-harvester/internal/retry"
)

// Lister lists candidate items for a source. Failures never escape ListItems:
// a broken source yields an empty slice so a multi-source batch keeps going.
type Lister struct {
	CookiesFromBrowser string
	Timeout            time.Duration
	Log                *logrus.Logger
}

type flatManifest struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Uploader string      `json:"uploader"`
	Channel  string      `json:"channel"`
	URL      string      `json:"webpage_url"`
	Entries  []flatEntry `json:"entries"`
}

type flatEntry struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
	Uploader   string `json:"uploader"`
	UploadDate string `json:"upload_date"`
}

// ListItems fetches the flat listing for src, capped hard at maxItems
// (0 means unlimited), ordered by ascending upload date where dates are
// known and provider order otherwise. The second return is the uploader
// display name reported by the listing, when available.
func (l *Lister) ListItems(ctx context.Context, src model.Source, maxItems int) ([]model.CandidateItem, string) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var raw []byte
	err := retry.Do(ctx, retry.Policy{MaxAttempts: 2, BaseDelay: 2 * time.Second}, func(ctx context.Context) error {
		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var fetchErr error
		raw, fetchErr = fetcher.FlatListJSON(fetchCtx, fetcher.ListOptions{
			SourceURL:          src.CanonicalURL,
			MaxItems:           maxItems,
			CookiesFromBrowser: l.CookiesFromBrowser,
		})
		return fetchErr
	})
	if err != nil {
		l.logf("listing failed for %s: %v", src.Key, err)
		return nil, ""
	}

	items, uploader, err := parseFlatManifest(raw, src)
	if err != nil {
		l.logf("listing unparseable for %s: %v", src.Key, err)
		return nil, ""
	}
	if len(items) == 0 {
		l.logf("listing empty for %s", src.Key)
		return nil, uploader
	}

	orderItems(items)
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, uploader
}

func (l *Lister) logf(format string, args ...any) {
	if l.Log != nil {
		l.Log.Errorf(format, args...)
	}
}

func parseFlatManifest(raw []byte, src model.Source) ([]model.CandidateItem, string, error) {
	var mf flatManifest
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, "", fmt.Errorf("parse listing manifest: %w", err)
	}
	uploader := firstNonEmpty(mf.Uploader, mf.Channel)

	// a single-video source has no entries array
	if len(mf.Entries) == 0 && strings.TrimSpace(mf.ID) != "" {
		item := model.CandidateItem{
			ID:         mf.ID,
			Title:      firstNonEmpty(mf.Title, "Untitled"),
			WebpageURL: firstNonEmpty(mf.URL, src.CanonicalURL),
			Uploader:   uploader,
		}
		return []model.CandidateItem{item}, uploader, nil
	}

	items := make([]model.CandidateItem, 0, len(mf.Entries))
	for _, e := range mf.Entries {
		id := strings.TrimSpace(e.ID)
		url := firstNonEmpty(e.WebpageURL, e.URL)
		if id == "" || url == "" {
			continue
		}
		items = append(items, model.CandidateItem{
			ID:         id,
			Title:      firstNonEmpty(e.Title, "Untitled"),
			WebpageURL: url,
			Uploader:   firstNonEmpty(e.Uploader, uploader),
			UploadDate: model.NormalizeUploadDate(e.UploadDate),
		})
	}
	return items, uploader, nil
}

// orderItems sorts ascending by upload date, keeping the provider's order for
// items without dates so repeated listings number identically. Undated items
// stay at their positions; the dated ones are sorted across the remaining
// slots, so the comparator never mixes dated and undated entries.
func orderItems(items []model.CandidateItem) {
	slots := make([]int, 0, len(items))
	for i, item := range items {
		if item.UploadDate != "" {
			slots = append(slots, i)
		}
	}
	dated := make([]model.CandidateItem, len(slots))
	for k, i := range slots {
		dated[k] = items[i]
	}
	sort.SliceStable(dated, func(a, b int) bool {
		return dated[a].UploadDate < dated[b].UploadDate
	})
	for k, i := range slots {
		items[i] = dated[k]
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
