package listing

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadSourcesFile reads one source identifier per line, skipping blanks and
// lines starting with '#'.
func ReadSourcesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var sources []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sources = append(sources, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}
	return sources, nil
}
