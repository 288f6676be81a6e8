package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReserveSequence atomically claims count consecutive ordinals for dir and
// returns the inclusive [start, end] range. Reserved ordinals are never
// handed out again, even when the downloads they were reserved for fail.
//
// The first reservation for a directory seeds the counter from
// max(stored_counter, highest numbered file already on disk), which
// reconciles a reset store against files that survived.
func (s *Store) ReserveSequence(ctx context.Context, dir string, count int) (int, int, error) {
	if count <= 0 {
		return 0, 0, fmt.Errorf("reserve sequence: count must be positive, got %d", count)
	}
	key, err := counterKey(dir)
	if err != nil {
		return 0, 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var last int
	err = tx.QueryRowContext(ctx, `SELECT last_index FROM counters WHERE dir = ?`, key).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		last = ProbeHighestIndex(dir)
	case err != nil:
		return 0, 0, fmt.Errorf("read counter for %s: %w", key, err)
	}

	start := last + 1
	end := last + count
	_, err = tx.ExecContext(ctx, `INSERT INTO counters (dir, last_index, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(dir) DO UPDATE SET last_index = excluded.last_index, updated_at = excluded.updated_at`,
		key, end, now())
	if err != nil {
		return 0, 0, fmt.Errorf("bump counter for %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit reserve tx: %w", err)
	}
	return start, end, nil
}

func counterKey(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("reserve sequence: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve counter directory %s: %w", dir, err)
	}
	return abs, nil
}

// ProbeHighestIndex scans dir for filenames shaped "NNNN - ..." and returns
// the highest numeric prefix found, or 0 for a missing or empty directory.
func ProbeHighestIndex(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		prefix, _, found := strings.Cut(e.Name(), " - ")
		if !found {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(prefix))
		if err != nil || n <= 0 {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest
}
