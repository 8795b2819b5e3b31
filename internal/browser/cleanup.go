package browser

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"signin-token-sync/internal/logging"
)

// StartCleanup removes leftover browser profile directories every interval until ctx ends.
// A sweep is skipped while any browser session is open.
func StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if activeSessions.Load() > 0 {
					logging.Log.Info("Skipping temp cleanup: active browser sessions detected")
					continue
				}
				SweepTempDirs(os.TempDir())
			}
		}
	}()
}

// SweepTempDirs deletes browser profile directories under root and returns how many were removed
func SweepTempDirs(root string) int {
	matches, err := filepath.Glob(filepath.Join(root, tempDirPattern))
	if err != nil {
		logging.Log.WithError(err).Warn("Failed to glob temp directories")
		return 0
	}

	removed := 0
	for _, dir := range matches {
		if err := os.RemoveAll(dir); err != nil {
			logging.Log.WithError(err).Warnf("Failed to remove temp dir: %s", dir)
			continue
		}
		logging.Log.Infof("Cleaned up temp dir: %s", dir)
		removed++
	}
	return removed
}

// ActiveSessions returns the number of browsers currently open
func ActiveSessions() int32 {
	return activeSessions.Load()
}
