// Package download runs the concurrent download stage: a worker pool that
// walks each video down the strategy ladder, enforces the size and quality
// checks, and records every outcome in the store.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"clip-harvester/internal/fetcher"
	"clip-harvester/internal/model"
	"clip-harvester/internal/report"
	"clip-harvester/internal/retry"
	"clip-harvester/internal/store"
)

// Options configure one orchestrator run.
type Options struct {
	OutputDir          string
	Workers            int
	CookiesFromBrowser string
	RateLimitMBps      float64
	// QualityFloor is the minimum short side in pixels. Files under the
	// floor are deleted and the next strategy is tried. Zero disables it.
	QualityFloor int
	// MinBytes defaults to MinFileBytes.
	MinBytes       int64
	AttemptTimeout time.Duration
	Strategies     []Strategy
	// StrategyBackoff and RateLimitBackoff control the waits between ladder
	// rungs. Zero values fall back to the package defaults.
	StrategyBackoff  retry.Policy
	RateLimitBackoff retry.Policy
	Log              *logrus.Logger
}

// Outcome summarizes one run of the download stage.
type Outcome struct {
	Dispatched int
	Succeeded  int
	Failed     int
}

// Orchestrator drives the download stage against a store and a report sink.
type Orchestrator struct {
	Store *store.Store
	Sink  *report.Sink
	Opts  Options
}

type job struct {
	index int
	item  model.CandidateItem
}

// Run downloads every item for src. Items must already be recorded as queued.
// Per-item failures are recorded and reported, never returned; the error
// return is reserved for infrastructure problems such as an unwritable
// output directory or a broken store.
func (o *Orchestrator) Run(ctx context.Context, src model.Source, items []model.CandidateItem) (Outcome, error) {
	if len(items) == 0 {
		return Outcome{}, nil
	}
	log := o.Opts.Log
	if log == nil {
		log = logrus.New()
	}

	outputDir := o.Opts.OutputDir
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("create output dir: %w", err)
	}
	if n := CleanupPartials(outputDir); n > 0 {
		log.WithField("removed", n).Info("cleaned up partial files from a previous run")
	}

	start, _, err := o.Store.ReserveSequence(ctx, outputDir, len(items))
	if err != nil {
		return Outcome{}, fmt.Errorf("reserve sequence block: %w", err)
	}

	workers := o.Opts.Workers
	if workers <= 0 {
		workers = 3
	}
	strategies := o.Opts.Strategies
	if len(strategies) == 0 {
		strategies = Ladder()
	}

	jobCh := make(chan job)
	var wg sync.WaitGroup
	var stopAll atomic.Bool
	var fatalErr atomic.Value
	var succeeded, failed atomic.Int64
	setFatal := func(err error) {
		if err == nil {
			return
		}
		if fatalErr.Load() == nil {
			fatalErr.Store(err.Error())
		}
		stopAll.Store(true)
	}

	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range jobCh {
				if stopAll.Load() {
					continue
				}
				ok := o.handleItem(ctx, log.WithFields(logrus.Fields{
					"worker":   workerID,
					"index":    j.index,
					"video_id": j.item.ID,
				}), src, j, strategies, setFatal)
				if ok {
					succeeded.Add(1)
					o.Sink.Add(src.Key, report.Counts{DownloadedOK: 1})
				} else {
					failed.Add(1)
					o.Sink.Add(src.Key, report.Counts{DownloadedFail: 1})
				}
			}
		}(w)
	}

	dispatched := 0
	for k, item := range items {
		if stopAll.Load() || ctx.Err() != nil {
			break
		}
		// The select keeps a send that is already blocked on a busy worker
		// from delivering one more job after an interrupt.
		select {
		case jobCh <- job{index: start + k, item: item}:
			dispatched++
		case <-ctx.Done():
		}
	}
	close(jobCh)
	wg.Wait()

	outcome := Outcome{
		Dispatched: dispatched,
		Succeeded:  int(succeeded.Load()),
		Failed:     int(failed.Load()),
	}
	if msg := fatalErr.Load(); msg != nil {
		return outcome, fmt.Errorf("%s", msg.(string))
	}
	return outcome, nil
}

// handleItem walks one video down the strategy ladder. It returns true when
// a file landed and the record moved to success.
func (o *Orchestrator) handleItem(ctx context.Context, log *logrus.Entry, src model.Source, j job, strategies []Strategy, setFatal func(error)) bool {
	item := j.item
	// Store writes are bookkeeping: a failed write is logged and the item
	// keeps going, since the download outcome is independent of it.
	o.recordStatus(ctx, log, model.VideoRecord{
		SourceKey: src.Key,
		VideoID:   item.ID,
		URL:       item.WebpageURL,
		Title:     item.Title,
		Status:    model.StatusDownloading,
	})

	ext := "mp4"
	stem := BuildBaseName(j.index, item.Title, item.Uploader, item.ID)
	stem = EnsureUnique(o.Opts.OutputDir, stem, ext)
	mediaPath := filepath.Join(o.Opts.OutputDir, stem+"."+ext)
	captionPath := filepath.Join(o.Opts.OutputDir, stem+".txt")

	if err := WriteCaptionSidecar(captionPath, item); err != nil {
		return o.failItem(ctx, log, src, item, fmt.Errorf("write caption sidecar: %w", err), captionPath)
	}

	tempDir := filepath.Join(o.Opts.OutputDir, ".tmp", fmt.Sprintf("%04d", j.index))
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return o.failItem(ctx, log, src, item, fmt.Errorf("create temp dir: %w", err), captionPath)
	}
	defer os.RemoveAll(tempDir)

	var lastErr error
	for si, strat := range strategies {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if !strat.Usable(o.Opts.CookiesFromBrowser) {
			continue
		}

		log.WithField("strategy", strat.Name).Debug("download attempt")
		lastErr = o.attempt(ctx, strat, item, mediaPath, tempDir)
		if lastErr == nil {
			break
		}
		log.WithField("strategy", strat.Name).WithError(lastErr).Warn("attempt failed")

		text := lastErr.Error()
		if isDependencyError(text) {
			setFatal(lastErr)
			break
		}
		if isGoneError(text) {
			break
		}
		if si == len(strategies)-1 {
			break
		}
		policy := o.Opts.StrategyBackoff
		if policy.BaseDelay <= 0 {
			policy = strategyBackoff
		}
		if isRateLimitedError(text) {
			policy = o.Opts.RateLimitBackoff
			if policy.BaseDelay <= 0 {
				policy = rateLimitBackoff
			}
		}
		wait := retry.Backoff(policy, si+1)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}

	if lastErr == nil {
		o.recordStatus(ctx, log, model.VideoRecord{
			SourceKey:   src.Key,
			VideoID:     item.ID,
			URL:         item.WebpageURL,
			Title:       item.Title,
			Status:      model.StatusSuccess,
			FilePath:    mediaPath,
			CaptionPath: captionPath,
		})
		log.Info("download complete")
		return true
	}
	return o.failItem(ctx, log, src, item, lastErr, captionPath)
}

// failItem records the terminal failure and removes the orphan sidecar so
// nothing on disk pretends the video exists. Always returns false.
func (o *Orchestrator) failItem(ctx context.Context, log *logrus.Entry, src model.Source, item model.CandidateItem, cause error, captionPath string) bool {
	_ = os.Remove(captionPath)
	o.Sink.Failure(src.Key, item.ID, item.WebpageURL, classifyName(cause.Error()), cause)
	o.recordStatus(ctx, log, model.VideoRecord{
		SourceKey: src.Key,
		VideoID:   item.ID,
		URL:       item.WebpageURL,
		Title:     item.Title,
		Status:    model.StatusFailed,
	})
	return false
}

func (o *Orchestrator) recordStatus(ctx context.Context, log *logrus.Entry, rec model.VideoRecord) {
	if err := o.Store.RecordStatus(ctx, rec); err != nil {
		log.WithError(err).WithField("status", rec.Status).Error("store update failed")
	}
}

// attempt runs one strategy and validates what it produced. Invalid output
// is deleted before returning so the next rung starts clean.
//
// The fetch runs on a context detached from the run context: an interrupt
// stops dispatching but lets the in-flight transfer finish, so no half-set
// of files ever stays behind. The attempt timeout still bounds it.
func (o *Orchestrator) attempt(ctx context.Context, strat Strategy, item model.CandidateItem, mediaPath, tempDir string) error {
	timeout := o.Opts.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := fetcher.Download(attemptCtx, fetcher.DownloadOptions{
		VideoURL:           item.WebpageURL,
		OutputPath:         mediaPath,
		TempDir:            tempDir,
		FormatSelector:     strat.FormatSelector,
		MergeFormat:        strat.MergeFormat,
		ExtraArgs:          strat.ExtraArgs,
		CookiesFromBrowser: o.Opts.CookiesFromBrowser,
		RateLimitMBps:      o.Opts.RateLimitMBps,
	})
	if err != nil {
		_ = os.Remove(mediaPath)
		return err
	}

	info, err := os.Stat(mediaPath)
	if err != nil {
		return fmt.Errorf("fetcher reported success but produced no file at %s", mediaPath)
	}
	minBytes := o.Opts.MinBytes
	if minBytes <= 0 {
		minBytes = MinFileBytes
	}
	if info.Size() < minBytes {
		_ = os.Remove(mediaPath)
		return fmt.Errorf("downloaded file is %d bytes, below the %d byte minimum", info.Size(), minBytes)
	}

	if o.Opts.QualityFloor > 0 {
		res, probeErr := fetcher.Probe(attemptCtx, mediaPath)
		if probeErr == nil && res.ShortSide() > 0 && res.ShortSide() < o.Opts.QualityFloor {
			_ = os.Remove(mediaPath)
			return fmt.Errorf("short side %dpx is below the %dpx quality floor", res.ShortSide(), o.Opts.QualityFloor)
		}
		// A probe failure is not grounds to discard a plausible file.
	}
	return nil
}

// defaultAttemptTimeout bounds a single fetch when the caller sets none, so
// a detached attempt can never hang past an interrupt indefinitely.
const defaultAttemptTimeout = 10 * time.Minute

var strategyBackoff = retry.Policy{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

var rateLimitBackoff = retry.Policy{BaseDelay: 15 * time.Second, MaxDelay: 2 * time.Minute}

func isRateLimitedError(s string) bool {
	text := strings.ToLower(s)
	hints := []string{
		"429",
		"too many requests",
		"rate limit",
		"rate-limit",
		"temporarily blocked",
	}
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

func isDependencyError(s string) bool {
	text := strings.ToLower(s)
	hints := []string{
		"ffmpeg could not be found",
		"ffprobe could not be found",
		"executable file not found",
	}
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

// isGoneError matches videos that no strategy can recover: deleted, private,
// or region locked content. The ladder stops early for these.
func isGoneError(s string) bool {
	text := strings.ToLower(s)
	hints := []string{
		"video unavailable",
		"private video",
		"has been removed",
		"account has been terminated",
		"http error 404",
		"not available in your country",
	}
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

func classifyName(s string) string {
	switch {
	case isRateLimitedError(s):
		return "rate_limited"
	case isDependencyError(s):
		return "missing_dependency"
	case isGoneError(s):
		return "gone"
	default:
		return "download"
	}
}
