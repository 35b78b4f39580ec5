package threadlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Sweep removes thread log files under dir whose last modification is
// older than maxAge (the retention sweep behind the gc-logs command
// and the startup sweep of run). Only .jsonl files are considered. It
// returns the number of files removed.
func Sweep(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("threadlog: read dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("threadlog: remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}
