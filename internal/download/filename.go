package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MinFileBytes is the smallest plausible media file. Anything below this is
// an error page or a truncated fragment, not a video.
const MinFileBytes = 1000

const maxComponentLen = 80

// BuildBaseName returns the sequence-prefixed stem for a video, without an
// extension: "0012 - some title - uploader". An unusable title falls back to
// "video_<id>".
func BuildBaseName(index int, title, uploader, videoID string) string {
	t := sanitizeComponent(title)
	if t == "" {
		t = "video_" + sanitizeComponent(videoID)
		t = strings.TrimSuffix(t, "_")
	}
	u := sanitizeComponent(uploader)
	if u == "" {
		return fmt.Sprintf("%04d - %s", index, t)
	}
	return fmt.Sprintf("%04d - %s - %s", index, t, u)
}

// EnsureUnique appends _1, _2, ... to the stem until neither the media file
// nor its caption sidecar exists in dir. It returns the final stem.
func EnsureUnique(dir, stem, ext string) string {
	candidate := stem
	for n := 1; ; n++ {
		media := filepath.Join(dir, candidate+"."+ext)
		sidecar := filepath.Join(dir, candidate+".txt")
		if !exists(media) && !exists(sidecar) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", stem, n)
	}
}

// sanitizeComponent reduces a freeform title or uploader to a portable ASCII
// filename component. Path separators, control characters, and anything
// non-ASCII are dropped; whitespace runs collapse to a single space.
func sanitizeComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(" ._,()[]'!&+-#@", r):
			b.WriteRune(r)
		default:
			// drop it
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	out = strings.Trim(out, " .")
	if len(out) > maxComponentLen {
		out = strings.TrimRight(out[:maxComponentLen], " .")
	}
	return out
}

// CleanupPartials removes leftover in-progress artifacts from dir. It is
// called before a run so an interrupted previous run cannot poison this one.
func CleanupPartials(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		if strings.HasSuffix(lower, ".part") || strings.HasSuffix(lower, ".ytdl") ||
			strings.Contains(lower, ".part-frag") {
			if os.Remove(filepath.Join(dir, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
