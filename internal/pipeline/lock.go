package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	harvestLockDirName   = ".harvest.lock"
	harvestLockOwnerFile = "owner.json"
)

// HarvestLock guards an output directory against concurrent harvests. Two
// runs writing the same sequence-numbered directory would race each other on
// filenames, so acquisition is mandatory before downloading.
type HarvestLock struct {
	lockDir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireHarvestLock takes the lock for outputDir, creating the directory if
// needed. Mkdir of the lock dir is the atomic acquisition step.
func AcquireHarvestLock(outputDir, runID string) (HarvestLock, error) {
	target := strings.TrimSpace(outputDir)
	if target == "" {
		return HarvestLock{}, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return HarvestLock{}, fmt.Errorf("create output dir %s: %w", target, err)
	}

	lockDir := filepath.Join(target, harvestLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			var owner lockOwner
			if data, readErr := os.ReadFile(filepath.Join(lockDir, harvestLockOwnerFile)); readErr == nil {
				if json.Unmarshal(data, &owner) == nil && owner.PID > 0 {
					return HarvestLock{}, fmt.Errorf(
						"output directory is locked by another harvest: %s (pid=%d run=%s created_at=%s)",
						target, owner.PID, owner.RunID, owner.CreatedAt,
					)
				}
			}
			return HarvestLock{}, fmt.Errorf("output directory is locked by another harvest: %s", target)
		}
		return HarvestLock{}, fmt.Errorf("acquire harvest lock for %s: %w", target, err)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		RunID:     runID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	data, err := json.MarshalIndent(owner, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(lockDir, harvestLockOwnerFile), data, 0o644)
	}
	if err != nil {
		_ = os.Remove(lockDir)
		return HarvestLock{}, fmt.Errorf("write harvest lock owner for %s: %w", target, err)
	}
	return HarvestLock{lockDir: lockDir}, nil
}

func (l HarvestLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, harvestLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release harvest lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
