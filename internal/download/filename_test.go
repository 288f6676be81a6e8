package download

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"clip-harvester/internal/model"
)

func TestBuildBaseName(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		title    string
		uploader string
		videoID  string
		want     string
	}{
		{
			name:     "plain",
			index:    12,
			title:    "Morning routine",
			uploader: "alice",
			want:     "0012 - Morning routine - alice",
		},
		{
			name:     "strips unsafe characters",
			index:    1,
			title:    `Best/clip: "ever" <3`,
			uploader: "bob",
			want:     "0001 - Bestclip ever 3 - bob",
		},
		{
			name:    "empty title falls back to video id",
			index:   3,
			title:   "",
			videoID: "abc123",
			want:    "0003 - video_abc123",
		},
		{
			name:    "emoji only title falls back",
			index:   4,
			title:   "🔥🔥🔥",
			videoID: "xyz",
			want:    "0004 - video_xyz",
		},
		{
			name:     "no uploader",
			index:    5,
			title:    "Solo",
			uploader: "",
			want:     "0005 - Solo",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, BuildBaseName(tc.index, tc.title, tc.uploader, tc.videoID))
		})
	}
}

func TestBuildBaseName_CapsLongTitles(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := BuildBaseName(1, long, "u", "id")
	require.LessOrEqual(t, len(got), len("0001 - ")+maxComponentLen+len(" - u"))
}

func TestEnsureUnique_SuffixesOnCollision(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001 - clip.mp4"), []byte("x"), 0o644))

	got := EnsureUnique(dir, "0001 - clip", "mp4")
	require.Equal(t, "0001 - clip_1", got)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001 - clip_1.txt"), []byte("x"), 0o644))
	got = EnsureUnique(dir, "0001 - clip", "mp4")
	require.Equal(t, "0001 - clip_2", got)
}

func TestCleanupPartials(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"0001 - clip.mp4.part",
		"0002 - other.mp4.ytdl",
		"0003 - frag.mp4.part-Frag3",
		"0004 - keep.mp4",
		"0004 - keep.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	removed := CleanupPartials(dir)
	require.Equal(t, 3, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestWriteCaptionSidecar_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0001 - clip.txt")
	item := model.CandidateItem{
		ID:         "vid1",
		Title:      "Fallback title",
		WebpageURL: "https://example.com/v/vid1",
		Uploader:   "alice",
		Caption:    "caption body #tag",
	}
	require.NoError(t, WriteCaptionSidecar(path, item))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	require.Equal(t, "caption body #tag", lines[0])
	require.Equal(t, "", lines[1])
	require.Equal(t, "Title: Fallback title", lines[2])
	require.Equal(t, "Uploader: alice", lines[3])
	require.Equal(t, "URL: https://example.com/v/vid1", lines[4])
	require.Equal(t, "ID: vid1", lines[5])
}

func TestWriteCaptionSidecar_EmptyCaptionUsesTitle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0001 - clip.txt")
	item := model.CandidateItem{ID: "vid1", Title: "Only title", Uploader: "alice"}
	require.NoError(t, WriteCaptionSidecar(path, item))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "Only title\n"))
}
