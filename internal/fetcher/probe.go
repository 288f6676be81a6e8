package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult holds the locally probed properties of a downloaded file.
type ProbeResult struct {
	Width           int
	Height          int
	DurationSeconds int
	BitrateKbps     int
}

// ShortSide returns the smaller video dimension, the number the quality
// floor is compared against.
func (p ProbeResult) ShortSide() int {
	if p.Width < p.Height {
		return p.Width
	}
	return p.Height
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe runs ffprobe against a local file and returns its dimensions,
// duration, and bitrate.
func Probe(ctx context.Context, path string) (ProbeResult, error) {
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, fmt.Errorf("probe: file path is required")
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}

	res := ProbeResult{}
	for _, s := range out.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			res.Width = s.Width
			res.Height = s.Height
			break
		}
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); err == nil {
		res.DurationSeconds = int(math.Round(v))
	}
	if v, err := strconv.Atoi(strings.TrimSpace(out.Format.BitRate)); err == nil {
		res.BitrateKbps = v / 1000
	}
	if res.Width == 0 || res.Height == 0 {
		return res, fmt.Errorf("ffprobe %s: no video stream dimensions", path)
	}
	return res, nil
}
