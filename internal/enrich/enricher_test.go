package enrich

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clip-harvester/internal/model"
)

// The fake yt-dlp keys its response on the video URL suffix so one script
// serves every item in a pass.
const fakeMetadataScript = `#!/usr/bin/env bash
url="${@: -1}"
case "$url" in
*v1)
  echo '{"id":"v1","title":"First","description":"fresh clip #shorts","upload_date":"20260830"}'
  ;;
*v2)
  echo '{"id":"v2","title":"Second","description":"ancient clip","upload_date":"20200101"}'
  ;;
*v3)
  echo '{"id":"v3","title":"Third","description":"should not be reached","upload_date":"20190101"}'
  ;;
*broken)
  echo "ERROR: video unavailable" >&2
  exit 1
  ;;
*)
  echo '{}'
  ;;
esac
`

func installFakeYTDLP(t *testing.T, script string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "yt-dlp"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func TestFetchCaption_PrefersDescription(t *testing.T) {
	installFakeYTDLP(t, fakeMetadataScript)

	e := &Enricher{Attempts: 1}
	caption, err := e.FetchCaption(context.Background(), model.CandidateItem{WebpageURL: "https://x/v/v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caption != "fresh clip #shorts" {
		t.Fatalf("unexpected caption: %q", caption)
	}
}

func TestFetchUploadDate_Normalizes(t *testing.T) {
	installFakeYTDLP(t, fakeMetadataScript)

	e := &Enricher{Attempts: 1}
	date, err := e.FetchUploadDate(context.Background(), model.CandidateItem{WebpageURL: "https://x/v/v2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if date != "2020-01-01" {
		t.Fatalf("unexpected date: %q", date)
	}
}

func TestEnrichItems_FillsMissingFields(t *testing.T) {
	installFakeYTDLP(t, fakeMetadataScript)

	items := []model.CandidateItem{
		{ID: "v1", WebpageURL: "https://x/v/v1"},
		{ID: "v2", WebpageURL: "https://x/v/v2", UploadDate: "2020-01-01", Caption: "already here", CaptionKnown: true},
	}

	e := &Enricher{Attempts: 1, Workers: 1}
	e.EnrichItems(context.Background(), items, Options{NeedCaption: true, NeedDate: true})

	if items[0].Caption != "fresh clip #shorts" || items[0].UploadDate != "2026-08-30" {
		t.Fatalf("item v1 not enriched: %+v", items[0])
	}
	if items[1].Caption != "already here" {
		t.Fatalf("item v2 caption overwritten: %+v", items[1])
	}
}

func TestEnrichItems_StopsPastCutoff(t *testing.T) {
	installFakeYTDLP(t, fakeMetadataScript)

	items := []model.CandidateItem{
		{ID: "v2", WebpageURL: "https://x/v/v2"},
		{ID: "v3", WebpageURL: "https://x/v/v3"},
	}

	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Enricher{Attempts: 1, Workers: 1}
	e.EnrichItems(context.Background(), items, Options{NeedDate: true, Cutoff: cutoff})

	if items[0].UploadDate != "2020-01-01" {
		t.Fatalf("first item should be enriched: %+v", items[0])
	}
	if items[1].UploadDate != "" {
		t.Fatalf("enrichment should have stopped before v3: %+v", items[1])
	}
}

func TestEnrichItems_FetchFailureLeavesItemUntouched(t *testing.T) {
	installFakeYTDLP(t, fakeMetadataScript)

	items := []model.CandidateItem{
		{ID: "b", WebpageURL: "https://x/v/broken"},
		{ID: "v1", WebpageURL: "https://x/v/v1"},
	}

	e := &Enricher{Attempts: 1, Workers: 1}
	e.EnrichItems(context.Background(), items, Options{NeedCaption: true})

	if items[0].CaptionKnown {
		t.Fatalf("broken item should stay unenriched: %+v", items[0])
	}
	if !items[1].CaptionKnown {
		t.Fatalf("second item should still be enriched: %+v", items[1])
	}
}
