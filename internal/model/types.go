package model

import (
	"strings"
	"time"
)

// Source is a creator or tag feed being scanned. The key is the stable
// normalized identifier used for dedup scoping; display name and URL are
// refreshed on every scan.
type Source struct {
	Key          string `json:"key"`
	DisplayName  string `json:"display_name"`
	CanonicalURL string `json:"canonical_url"`
}

// CandidateItem is a video discovered during listing, before the store has
// been consulted. It only ever lives in pipeline memory.
type CandidateItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	WebpageURL string `json:"webpage_url"`
	Uploader   string `json:"uploader"`
	// UploadDate is an ISO date (2006-01-02) or empty when the listing did
	// not include one. Enrichment may fill it later.
	UploadDate string `json:"upload_date,omitempty"`
	Caption    string `json:"caption,omitempty"`
	// CaptionKnown distinguishes "no caption on the platform" from
	// "enrichment never ran".
	CaptionKnown bool `json:"caption_known,omitempty"`
}

// VideoRecord is the durable bookkeeping row keyed by (source_key, video_id).
type VideoRecord struct {
	SourceKey   string `json:"source_key"`
	VideoID     string `json:"video_id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	FilePath    string `json:"file_path,omitempty"`
	CaptionPath string `json:"caption_path,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// NormalizeUploadDate accepts the fetcher's YYYYMMDD form or an ISO date and
// returns the ISO form, or empty when the input is unusable.
func NormalizeUploadDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if len(s) == 8 && isDigits(s) {
		s = s[:4] + "-" + s[4:6] + "-" + s[6:8]
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return ""
	}
	return s
}

// ParseUploadDate returns the item date as a time.Time, or zero when the
// date is missing or malformed.
func ParseUploadDate(raw string) time.Time {
	iso := NormalizeUploadDate(raw)
	if iso == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
