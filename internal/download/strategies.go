package download

import "strings"

// Strategy is one rung of the fallback ladder. Strategies are tried in order
// for each video until one produces a file that passes the size and quality
// checks.
type Strategy struct {
	Name           string
	FormatSelector string
	MergeFormat    string
	ExtraArgs      []string
	// NeedsCookies marks rungs that only make sense when a browser cookie
	// source is configured; they are skipped otherwise.
	NeedsCookies bool
}

// Ladder returns the default strategy order. The first rung is the plain
// best-quality fetch; later rungs work around extractor throttling, IPv6
// routing problems, and login walls, and the last rung gives up on merging
// and accepts a pre-merged single format.
func Ladder() []Strategy {
	return []Strategy{
		{
			Name:           "default",
			FormatSelector: "bv*+ba/b",
			MergeFormat:    "mp4",
		},
		{
			Name:           "impersonate",
			FormatSelector: "bv*+ba/b",
			MergeFormat:    "mp4",
			ExtraArgs:      []string{"--extractor-args", "generic:impersonate"},
		},
		{
			Name:           "force-ipv4",
			FormatSelector: "bv*+ba/b",
			MergeFormat:    "mp4",
			ExtraArgs:      []string{"--force-ipv4"},
		},
		{
			Name:           "browser-cookies",
			FormatSelector: "bv*+ba/b",
			MergeFormat:    "mp4",
			NeedsCookies:   true,
		},
		{
			Name:           "premerged",
			FormatSelector: "b",
		},
	}
}

// Usable reports whether the rung applies given the configured cookie source.
func (s Strategy) Usable(cookiesFromBrowser string) bool {
	if !s.NeedsCookies {
		return true
	}
	return strings.TrimSpace(cookiesFromBrowser) != ""
}
