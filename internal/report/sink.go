// Package report aggregates per-source outcome counts and owns the
// append-only error log. Nothing in here ever fails the pipeline: a broken
// log file costs visibility, not downloads.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Counts is one row of the run summary.
type Counts struct {
	Listed         int
	FilteredOut    int
	Duplicate      int
	DownloadedOK   int
	DownloadedFail int
}

func (c *Counts) add(other Counts) {
	c.Listed += other.Listed
	c.FilteredOut += other.FilteredOut
	c.Duplicate += other.Duplicate
	c.DownloadedOK += other.DownloadedOK
	c.DownloadedFail += other.DownloadedFail
}

// Sink collects counts across sources and appends failure detail to the
// error log. Safe for concurrent use by download workers.
type Sink struct {
	mu        sync.Mutex
	perSource map[string]*Counts
	order     []string
	logPath   string
	logOnce   sync.Once
	logFile   *os.File
}

// NewSink creates a sink appending failures to logPath. An empty path
// disables the file log.
func NewSink(logPath string) *Sink {
	return &Sink{
		perSource: make(map[string]*Counts),
		logPath:   logPath,
	}
}

// Add merges delta into the counts for sourceKey.
func (s *Sink) Add(sourceKey string, delta Counts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.perSource[sourceKey]
	if !ok {
		c = &Counts{}
		s.perSource[sourceKey] = c
		s.order = append(s.order, sourceKey)
	}
	c.add(delta)
}

// Failure appends one structured, timestamped entry to the error log. Log
// I/O problems are swallowed; the pipeline result for the item has already
// been decided elsewhere.
func (s *Sink) Failure(sourceKey, videoID, url, class string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.openLog()
	if f == nil {
		return
	}
	entry := fmt.Sprintf("[%s] source=%s video_id=%s class=%s\nurl: %s\nerror: %v\n\n",
		time.Now().UTC().Format(time.RFC3339), sourceKey, videoID, class, url, err)
	_, _ = f.WriteString(entry)
}

// Source returns a copy of the counts for one source.
func (s *Sink) Source(sourceKey string) Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.perSource[sourceKey]; ok {
		return *c
	}
	return Counts{}
}

// Total returns the overall counts across every source.
func (s *Sink) Total() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total Counts
	for _, c := range s.perSource {
		total.add(*c)
	}
	return total
}

// WriteSummary renders the per-source and overall counts as a table.
func (s *Sink) WriteSummary(w io.Writer) {
	s.mu.Lock()
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	rows := make(map[string]Counts, len(keys))
	for _, k := range keys {
		rows[k] = *s.perSource[k]
	}
	s.mu.Unlock()

	sort.Strings(keys)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Listed", "Filtered", "Duplicate", "Downloaded", "Failed"})
	for _, k := range keys {
		c := rows[k]
		t.AppendRow(table.Row{k, c.Listed, c.FilteredOut, c.Duplicate, c.DownloadedOK, c.DownloadedFail})
	}
	total := Counts{}
	for _, c := range rows {
		total.add(c)
	}
	t.AppendFooter(table.Row{"total", total.Listed, total.FilteredOut, total.Duplicate, total.DownloadedOK, total.DownloadedFail})
	t.Render()
}

// Close releases the error log handle.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logFile != nil {
		_ = s.logFile.Close()
		s.logFile = nil
	}
}

func (s *Sink) openLog() *os.File {
	if strings.TrimSpace(s.logPath) == "" {
		return nil
	}
	s.logOnce.Do(func() {
		f, err := os.OpenFile(s.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open error log %s: %v\n", s.logPath, err)
			return
		}
		s.logFile = f
	})
	return s.logFile
}
