package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err, "explicit missing path must fail")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, "all", cfg.HashtagMode)
	require.Equal(t, "downloads", cfg.OutputDir)
	require.NotEmpty(t, cfg.DBPath)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
output_dir: /srv/clips
workers: 5
required_hashtags: [shorts, viral]
hashtag_mode: any
window_days: 14
quality_floor: 720
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/srv/clips", cfg.OutputDir)
	require.Equal(t, 5, cfg.Workers)
	require.Equal(t, []string{"shorts", "viral"}, cfg.RequiredHashtags)
	require.Equal(t, "any", cfg.HashtagMode)
	require.Equal(t, 14, cfg.WindowDays)
	require.Equal(t, 720, cfg.QualityFloor)
}

func TestLoad_EnvBeatsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 5\noutput_dir: /from/yaml\n"), 0o644))

	t.Setenv("CH_WORKERS", "9")
	t.Setenv("CH_OUTPUT_DIR", "/from/env")
	t.Setenv("CH_REQUIRED_HASHTAGS", "a,b")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Workers)
	require.Equal(t, "/from/env", cfg.OutputDir)
	require.Equal(t, []string{"a", "b"}, cfg.RequiredHashtags)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Workers = -1
	require.Error(t, bad.Validate())

	bad = cfg
	bad.HashtagMode = "some"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.MinDurationSeconds = 90
	bad.MaxDurationSeconds = 30
	require.Error(t, bad.Validate())

	cfg.HashtagMode = "ANY"
	require.NoError(t, cfg.Validate())
}
