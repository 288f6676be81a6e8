package filter

import (
	"time"

	"clip-harvester/internal/model"
)

// Rules holds every pre-download criterion for one harvest. Duration bounds
// are deliberately absent: duration needs a local file, so they run in the
// post-download sweep instead.
type Rules struct {
	RequiredHashtags []string
	HashtagMode      MatchMode
	// WindowDays restricts items to the last N days; 0 disables the window.
	WindowDays int
	Now        time.Time
}

// NeedsCaption reports whether evaluating these rules requires caption text.
func (r Rules) NeedsCaption() bool {
	return len(normalizeTags(r.RequiredHashtags)) > 0
}

// NeedsUploadDate reports whether a date window is active.
func (r Rules) NeedsUploadDate() bool {
	return r.WindowDays > 0
}

// Cutoff returns the oldest acceptable upload date, or zero when no window
// is active.
func (r Rules) Cutoff() time.Time {
	if r.WindowDays <= 0 {
		return time.Time{}
	}
	now := r.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return now.AddDate(0, 0, -r.WindowDays)
}

// reference returns the window's upper bound, r.Now or the current time.
func (r Rules) reference() time.Time {
	if !r.Now.IsZero() {
		return r.Now
	}
	return time.Now().UTC()
}

// Verdict explains why an item was rejected so callers can record skips.
type Verdict int

const (
	Accepted Verdict = iota
	RejectedHashtag
	RejectedDate
)

// Passes evaluates the pre-download rules against an item. An item with no
// caption when hashtags are required is rejected: the caption was fetched
// (or fetchable) and lacked the tags, or enrichment failed and the item
// cannot be proven to match.
func Passes(item model.CandidateItem, rules Rules) Verdict {
	if rules.NeedsCaption() {
		found := ExtractHashtags(item.Caption)
		mode := rules.HashtagMode
		if mode == "" {
			mode = MatchAll
		}
		if !ContainsRequiredHashtags(found, rules.RequiredHashtags, mode) {
			return RejectedHashtag
		}
	}

	// The window is [now-days, now]: a future-dated item is as much outside
	// it as a stale one.
	if rules.NeedsUploadDate() {
		date := model.ParseUploadDate(item.UploadDate)
		if date.IsZero() || date.Before(rules.Cutoff()) || date.After(rules.reference()) {
			return RejectedDate
		}
	}

	return Accepted
}

// DurationBounds is the post-download criterion evaluated by the sweep.
type DurationBounds struct {
	MinSeconds int
	MaxSeconds int
}

// Enabled reports whether either bound is set.
func (d DurationBounds) Enabled() bool {
	return d.MinSeconds > 0 || d.MaxSeconds > 0
}

// Within tests a probed duration against the bounds. An unknown duration
// (zero or negative) fails closed, matching how unprobeable files are
// treated as not meeting criteria.
func (d DurationBounds) Within(seconds int) bool {
	if seconds <= 0 {
		return false
	}
	if d.MinSeconds > 0 && seconds < d.MinSeconds {
		return false
	}
	if d.MaxSeconds > 0 && seconds > d.MaxSeconds {
		return false
	}
	return true
}
