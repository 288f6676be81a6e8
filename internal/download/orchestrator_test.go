package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clip-harvester/internal/model"
	"clip-harvester/internal/report"
	"clip-harvester/internal/retry"
	"clip-harvester/internal/store"
)

func installFakeBin(t *testing.T, name, script string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

// writingFetcher is a fake yt-dlp that writes size bytes to the --output path.
func writingFetcher(size int) string {
	return fmt.Sprintf(`#!/usr/bin/env bash
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
head -c %d /dev/zero > "$out"
`, size)
}

const goodProber = `#!/usr/bin/env bash
echo '{"streams":[{"codec_type":"video","width":1080,"height":1920}],"format":{"duration":"30.0"}}'
`

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func queueItems(t *testing.T, s *store.Store, src model.Source, items []model.CandidateItem) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertSource(ctx, src))
	for _, it := range items {
		require.NoError(t, s.RecordStatus(ctx, model.VideoRecord{
			SourceKey: src.Key,
			VideoID:   it.ID,
			URL:       it.WebpageURL,
			Title:     it.Title,
			Status:    model.StatusQueued,
		}))
	}
}

func fastBackoff() (retry.Policy, retry.Policy) {
	p := retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	return p, p
}

func TestRun_SuccessWritesMediaCaptionAndRecord(t *testing.T) {
	installFakeBin(t, "yt-dlp", writingFetcher(5000))
	installFakeBin(t, "ffprobe", goodProber)

	s := openTestStore(t)
	sink := report.NewSink("")
	defer sink.Close()
	outDir := t.TempDir()

	src := model.Source{Key: "@alice", CanonicalURL: "https://example.com/@alice"}
	items := []model.CandidateItem{{
		ID:         "vid1",
		Title:      "Morning routine",
		WebpageURL: "https://example.com/v/vid1",
		Uploader:   "alice",
		Caption:    "good morning #vlog",
	}}
	queueItems(t, s, src, items)

	sb, rb := fastBackoff()
	o := &Orchestrator{Store: s, Sink: sink, Opts: Options{
		OutputDir:        outDir,
		Workers:          1,
		QualityFloor:     720,
		StrategyBackoff:  sb,
		RateLimitBackoff: rb,
	}}
	outcome, err := o.Run(context.Background(), src, items)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Succeeded)
	require.Equal(t, 0, outcome.Failed)

	rec, err := s.GetRecord(context.Background(), "@alice", "vid1")
	require.NoError(t, err)
	require.Equal(t, model.StatusSuccess, rec.Status)
	require.FileExists(t, rec.FilePath)
	require.FileExists(t, rec.CaptionPath)
	require.True(t, strings.HasPrefix(filepath.Base(rec.FilePath), "0001 - "))

	caption, err := os.ReadFile(rec.CaptionPath)
	require.NoError(t, err)
	text := string(caption)
	require.Contains(t, text, "good morning #vlog")
	require.Contains(t, text, "Uploader: alice")
	require.Contains(t, text, "URL: https://example.com/v/vid1")
	require.Contains(t, text, "ID: vid1")

	require.Equal(t, 1, sink.Source("@alice").DownloadedOK)
}

func TestRun_FallsBackToLaterStrategy(t *testing.T) {
	installFakeBin(t, "yt-dlp", `#!/usr/bin/env bash
forced=0
out=""
prev=""
for a in "$@"; do
  if [ "$a" = "--force-ipv4" ]; then forced=1; fi
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
if [ "$forced" = 1 ]; then
  head -c 5000 /dev/zero > "$out"
  exit 0
fi
echo "ERROR: HTTP Error 429: Too Many Requests" >&2
exit 1
`)
	installFakeBin(t, "ffprobe", goodProber)

	s := openTestStore(t)
	sink := report.NewSink("")
	defer sink.Close()
	outDir := t.TempDir()

	src := model.Source{Key: "@alice"}
	items := []model.CandidateItem{{ID: "vid1", Title: "Clip", WebpageURL: "https://example.com/v/vid1"}}
	queueItems(t, s, src, items)

	sb, rb := fastBackoff()
	o := &Orchestrator{Store: s, Sink: sink, Opts: Options{
		OutputDir:        outDir,
		Workers:          1,
		StrategyBackoff:  sb,
		RateLimitBackoff: rb,
	}}
	outcome, err := o.Run(context.Background(), src, items)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Succeeded)

	rec, err := s.GetRecord(context.Background(), "@alice", "vid1")
	require.NoError(t, err)
	require.Equal(t, model.StatusSuccess, rec.Status)
}

func TestRun_GoneErrorStopsLadder(t *testing.T) {
	callLog := filepath.Join(t.TempDir(), "calls")
	installFakeBin(t, "yt-dlp", fmt.Sprintf(`#!/usr/bin/env bash
echo call >> %q
echo "ERROR: Video unavailable" >&2
exit 1
`, callLog))
	installFakeBin(t, "ffprobe", goodProber)

	s := openTestStore(t)
	sink := report.NewSink("")
	defer sink.Close()
	outDir := t.TempDir()

	src := model.Source{Key: "@alice"}
	items := []model.CandidateItem{{ID: "vid1", Title: "Gone", WebpageURL: "https://example.com/v/vid1"}}
	queueItems(t, s, src, items)

	sb, rb := fastBackoff()
	o := &Orchestrator{Store: s, Sink: sink, Opts: Options{
		OutputDir:        outDir,
		Workers:          1,
		StrategyBackoff:  sb,
		RateLimitBackoff: rb,
	}}
	outcome, err := o.Run(context.Background(), src, items)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Failed)

	calls, err := os.ReadFile(callLog)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(calls), "call"))

	rec, err := s.GetRecord(context.Background(), "@alice", "vid1")
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, rec.Status)
	require.Empty(t, rec.CaptionPath)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, ".txt", filepath.Ext(e.Name()), "orphan caption sidecar left behind")
	}
}

func TestRun_QualityFloorRejectsLowResolution(t *testing.T) {
	installFakeBin(t, "yt-dlp", writingFetcher(5000))
	installFakeBin(t, "ffprobe", `#!/usr/bin/env bash
echo '{"streams":[{"codec_type":"video","width":480,"height":360}],"format":{"duration":"30.0"}}'
`)

	s := openTestStore(t)
	logPath := filepath.Join(t.TempDir(), "errors.log")
	sink := report.NewSink(logPath)
	outDir := t.TempDir()

	src := model.Source{Key: "@alice"}
	items := []model.CandidateItem{{ID: "vid1", Title: "Low res", WebpageURL: "https://example.com/v/vid1"}}
	queueItems(t, s, src, items)

	sb, rb := fastBackoff()
	o := &Orchestrator{Store: s, Sink: sink, Opts: Options{
		OutputDir:        outDir,
		Workers:          1,
		QualityFloor:     720,
		StrategyBackoff:  sb,
		RateLimitBackoff: rb,
	}}
	outcome, err := o.Run(context.Background(), src, items)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Failed)
	sink.Close()

	rec, err := s.GetRecord(context.Background(), "@alice", "vid1")
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, rec.Status)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, ".mp4", filepath.Ext(e.Name()), "under-floor file left behind")
	}

	logData, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(logData), "quality floor")
}

func TestRun_RejectsTinyFiles(t *testing.T) {
	installFakeBin(t, "yt-dlp", writingFetcher(10))
	installFakeBin(t, "ffprobe", goodProber)

	s := openTestStore(t)
	sink := report.NewSink("")
	defer sink.Close()
	outDir := t.TempDir()

	src := model.Source{Key: "@alice"}
	items := []model.CandidateItem{{ID: "vid1", Title: "Tiny", WebpageURL: "https://example.com/v/vid1"}}
	queueItems(t, s, src, items)

	sb, rb := fastBackoff()
	o := &Orchestrator{Store: s, Sink: sink, Opts: Options{
		OutputDir:        outDir,
		Workers:          1,
		StrategyBackoff:  sb,
		RateLimitBackoff: rb,
	}}
	outcome, err := o.Run(context.Background(), src, items)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Failed)
}

func TestRun_ConcurrentItemsGetDistinctIndexes(t *testing.T) {
	installFakeBin(t, "yt-dlp", writingFetcher(5000))
	installFakeBin(t, "ffprobe", goodProber)

	s := openTestStore(t)
	sink := report.NewSink("")
	defer sink.Close()
	outDir := t.TempDir()

	src := model.Source{Key: "@alice"}
	items := make([]model.CandidateItem, 0, 4)
	for i := 1; i <= 4; i++ {
		items = append(items, model.CandidateItem{
			ID:         fmt.Sprintf("vid%d", i),
			Title:      fmt.Sprintf("Clip %d", i),
			WebpageURL: fmt.Sprintf("https://example.com/v/vid%d", i),
			Uploader:   "alice",
		})
	}
	queueItems(t, s, src, items)

	sb, rb := fastBackoff()
	o := &Orchestrator{Store: s, Sink: sink, Opts: Options{
		OutputDir:        outDir,
		Workers:          2,
		StrategyBackoff:  sb,
		RateLimitBackoff: rb,
	}}
	outcome, err := o.Run(context.Background(), src, items)
	require.NoError(t, err)
	require.Equal(t, 4, outcome.Succeeded)

	seen := map[string]bool{}
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".mp4" {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), " - ")
		require.True(t, ok)
		require.False(t, seen[prefix], "duplicate sequence prefix %s", prefix)
		seen[prefix] = true
	}
	require.Len(t, seen, 4)
	for _, p := range []string{"0001", "0002", "0003", "0004"} {
		require.True(t, seen[p], "missing prefix %s", p)
	}
}

func TestRun_InterruptDrainsInFlightItem(t *testing.T) {
	// The fake transfer takes long enough that cancellation lands mid-fetch.
	installFakeBin(t, "yt-dlp", `#!/usr/bin/env bash
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
sleep 0.5
head -c 5000 /dev/zero > "$out"
`)
	installFakeBin(t, "ffprobe", goodProber)

	s := openTestStore(t)
	sink := report.NewSink("")
	defer sink.Close()
	outDir := t.TempDir()

	src := model.Source{Key: "@alice"}
	items := make([]model.CandidateItem, 0, 3)
	for i := 1; i <= 3; i++ {
		items = append(items, model.CandidateItem{
			ID:         fmt.Sprintf("vid%d", i),
			Title:      fmt.Sprintf("Clip %d", i),
			WebpageURL: fmt.Sprintf("https://example.com/v/vid%d", i),
		})
	}
	queueItems(t, s, src, items)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	sb, rb := fastBackoff()
	o := &Orchestrator{Store: s, Sink: sink, Opts: Options{
		OutputDir:        outDir,
		Workers:          1,
		StrategyBackoff:  sb,
		RateLimitBackoff: rb,
	}}
	outcome, err := o.Run(ctx, src, items)
	require.NoError(t, err)

	// The in-flight item finishes cleanly; nothing else is dispatched.
	require.Equal(t, 1, outcome.Dispatched)
	require.Equal(t, 1, outcome.Succeeded)
	require.Equal(t, 0, outcome.Failed)

	rec, err := s.GetRecord(context.Background(), "@alice", "vid1")
	require.NoError(t, err)
	require.Equal(t, model.StatusSuccess, rec.Status)
	require.FileExists(t, rec.FilePath)
	require.FileExists(t, rec.CaptionPath)

	for _, id := range []string{"vid2", "vid3"} {
		rec, err := s.GetRecord(context.Background(), "@alice", id)
		require.NoError(t, err)
		require.Equal(t, model.StatusQueued, rec.Status)
	}
}

func TestErrorClassification(t *testing.T) {
	require.True(t, isRateLimitedError("ERROR: HTTP Error 429: Too Many Requests"))
	require.True(t, isRateLimitedError("rate limit reached, try later"))
	require.False(t, isRateLimitedError("ERROR: format not available"))

	require.True(t, isGoneError("ERROR: Video unavailable"))
	require.True(t, isGoneError("ERROR: Private video"))
	require.False(t, isGoneError("connection reset by peer"))

	require.True(t, isDependencyError("ffmpeg could not be found"))
	require.False(t, isDependencyError("HTTP Error 500"))

	require.Equal(t, "rate_limited", classifyName("429"))
	require.Equal(t, "gone", classifyName("Video unavailable"))
	require.Equal(t, "download", classifyName("something else"))
}
