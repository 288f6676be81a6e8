// Package fetcher wraps the external yt-dlp and ffprobe binaries. It is the
// only place the pipeline shells out; callers pass a context to bound every
// invocation.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const binName = "yt-dlp"

// ListOptions configure a flat listing request against a profile or tag URL.
type ListOptions struct {
	SourceURL          string
	MaxItems           int
	CookiesFromBrowser string
}

// MetadataOptions configure a full single-video metadata fetch.
type MetadataOptions struct {
	VideoURL           string
	CookiesFromBrowser string
}

// DownloadOptions configure one download attempt for one video. OutputPath is
// the exact target file; the fetcher is told to merge into its extension.
type DownloadOptions struct {
	VideoURL           string
	OutputPath         string
	TempDir            string
	FormatSelector     string
	MergeFormat        string
	ExtraArgs          []string
	CookiesFromBrowser string
	RateLimitMBps      float64
}

// DependencyReport lists the external binaries the pipeline shells out to.
type DependencyReport struct {
	FetcherFound bool   `json:"fetcher_found"`
	FetcherPath  string `json:"fetcher_path,omitempty"`
	ProberFound  bool   `json:"prober_found"`
	ProberPath   string `json:"prober_path,omitempty"`
}

func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath(binName); err == nil {
		report.FetcherFound = true
		report.FetcherPath = path
	}
	if path, err := exec.LookPath("ffprobe"); err == nil {
		report.ProberFound = true
		report.ProberPath = path
	}
	return report
}

func CheckDependencies() error {
	report := DependencyStatus()
	if !report.FetcherFound {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", binName)
	}
	if !report.ProberFound {
		return fmt.Errorf("missing dependency: ffprobe is required for the quality floor check and was not found on PATH")
	}
	return nil
}

// FlatListJSON fetches a shallow listing for a source without downloading
// anything. The result is the fetcher's JSON manifest.
func FlatListJSON(ctx context.Context, opts ListOptions) ([]byte, error) {
	if strings.TrimSpace(opts.SourceURL) == "" {
		return nil, fmt.Errorf("source URL is required")
	}

	args := []string{"--flat-playlist", "-J", "--no-warnings"}
	if opts.MaxItems > 0 {
		args = append(args, "--playlist-end", fmt.Sprintf("%d", opts.MaxItems))
	}
	if strings.TrimSpace(opts.CookiesFromBrowser) != "" {
		args = append(args, "--cookies-from-browser", opts.CookiesFromBrowser)
	}
	args = append(args, opts.SourceURL)

	return runJSON(ctx, args)
}

// MetadataJSON fetches full metadata for a single video, caption included.
func MetadataJSON(ctx context.Context, opts MetadataOptions) ([]byte, error) {
	if strings.TrimSpace(opts.VideoURL) == "" {
		return nil, fmt.Errorf("video URL is required")
	}

	args := []string{"-J", "--no-playlist", "--no-warnings", "--skip-download"}
	if strings.TrimSpace(opts.CookiesFromBrowser) != "" {
		args = append(args, "--cookies-from-browser", opts.CookiesFromBrowser)
	}
	args = append(args, opts.VideoURL)

	return runJSON(ctx, args)
}

// Download runs one fetch attempt. On a non-zero exit the combined stderr is
// folded into the returned error so callers can classify it.
func Download(ctx context.Context, opts DownloadOptions) error {
	if strings.TrimSpace(opts.VideoURL) == "" {
		return fmt.Errorf("video URL is required")
	}
	if strings.TrimSpace(opts.OutputPath) == "" {
		return fmt.Errorf("output path is required")
	}

	args := []string{
		"--no-warnings",
		"--no-playlist",
		"--newline",
		"--no-check-certificates",
		"--ignore-config",
		"--geo-bypass",
		"--no-cache-dir",
		"--retries", "3",
		"--fragment-retries", "3",
		"--add-header", "Accept-Language: en-US,en;q=0.9",
		"--output", opts.OutputPath,
	}
	if strings.TrimSpace(opts.TempDir) != "" {
		args = append(args, "--paths", "temp:"+opts.TempDir)
	}
	if strings.TrimSpace(opts.FormatSelector) != "" {
		args = append(args, "-f", opts.FormatSelector)
	}
	if strings.TrimSpace(opts.MergeFormat) != "" {
		args = append(args, "--merge-output-format", strings.ToLower(opts.MergeFormat))
	}
	if strings.TrimSpace(opts.CookiesFromBrowser) != "" {
		args = append(args, "--cookies-from-browser", opts.CookiesFromBrowser)
	}
	if opts.RateLimitMBps > 0 {
		args = append(args, "--limit-rate", fmt.Sprintf("%gM", opts.RateLimitMBps))
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, opts.VideoURL)

	cmd := exec.CommandContext(ctx, binName, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s timed out: %w", binName, ctxErr)
		}
		return fmt.Errorf("%s failed: %w\n%s\n%s", binName, err,
			strings.TrimSpace(stderr.String()), strings.TrimSpace(stdout.String()))
	}
	return nil
}

func runJSON(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binName, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s timed out: %w", binName, ctxErr)
		}
		return nil, fmt.Errorf("%s failed: %w: %s", binName, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s returned empty output", binName)
	}
	return stdout.Bytes(), nil
}
