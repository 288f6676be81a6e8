package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"clip-harvester/internal/model"
)

// WriteCaptionSidecar writes the caption text file next to where the media
// file will land. The sidecar is written before the download starts so a
// crash mid-download still leaves the caption paired with the record.
//
// Layout: caption body, blank line, then labelled provenance lines.
func WriteCaptionSidecar(path string, item model.CandidateItem) error {
	var b strings.Builder
	body := strings.TrimSpace(item.Caption)
	if body == "" {
		body = strings.TrimSpace(item.Title)
	}
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	fmt.Fprintf(&b, "Uploader: %s\n", item.Uploader)
	fmt.Fprintf(&b, "URL: %s\n", item.WebpageURL)
	fmt.Fprintf(&b, "ID: %s\n", item.ID)

	return writeFileAtomic(path, []byte(b.String()))
}

// writeFileAtomic writes via a temp file in the same directory followed by a
// rename, so readers never observe a half-written sidecar.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".caption-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
