package model

import "fmt"

const (
	StatusQueued         = "queued"
	StatusDownloading    = "downloading"
	StatusSuccess        = "success"
	StatusFailed         = "failed"
	StatusSkippedHashtag = "skipped_hashtag"
	StatusDeleted        = "deleted"
)

// Records move forward only; the single backward edge is failed -> queued,
// which is the explicit manual retry path.
var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusQueued:         true,
		StatusSkippedHashtag: true,
	},
	StatusQueued: {
		StatusQueued:         true,
		StatusDownloading:    true,
		StatusFailed:         true,
		StatusSkippedHashtag: true,
	},
	StatusDownloading: {
		StatusDownloading: true,
		StatusSuccess:     true,
		StatusFailed:      true,
	},
	StatusSuccess: {
		StatusSuccess: true,
		StatusDeleted: true, // criteria sweep removed the files
	},
	StatusFailed: {
		StatusFailed: true,
		StatusQueued: true, // manual requeue
	},
	StatusSkippedHashtag: {
		StatusSkippedHashtag: true,
	},
	StatusDeleted: {
		StatusDeleted: true,
	},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ValidateTransition rejects backwards status movement for a record.
func ValidateTransition(rec *VideoRecord, toStatus string) error {
	if !CanTransition(rec.Status, toStatus) {
		return fmt.Errorf("invalid status transition: %q -> %q (source=%s video_id=%s)", rec.Status, toStatus, rec.SourceKey, rec.VideoID)
	}
	return nil
}
