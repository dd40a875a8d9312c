package logging

import (
	"fmt"
	"os"
)

// LogRotator shifts exoskull.log -> exoskull.log.1 -> ... -> exoskull.log.N,
// dropping the oldest backup.
type LogRotator struct {
	basePath   string
	maxSizeMB  int
	maxBackups int
}

func NewLogRotator(basePath string, maxSizeMB, maxBackups int) *LogRotator {
	return &LogRotator{basePath: basePath, maxSizeMB: maxSizeMB, maxBackups: maxBackups}
}

// ShouldRotate reports whether size has reached the threshold. A threshold
// of zero disables rotation.
func (r *LogRotator) ShouldRotate(size int64) bool {
	if r.maxSizeMB <= 0 {
		return false
	}
	return size >= int64(r.maxSizeMB)*1024*1024
}

func (r *LogRotator) backup(n int) string {
	return fmt.Sprintf("%s.%d", r.basePath, n)
}

// Rotate renames the live file to .1 after shifting older backups up by one.
// With maxBackups == 0 the live file is simply removed.
func (r *LogRotator) Rotate() error {
	if r.maxBackups <= 0 {
		if err := os.Remove(r.basePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove log file: %w", err)
		}
		return nil
	}

	if err := os.Remove(r.backup(r.maxBackups)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete oldest backup: %w", err)
	}
	for i := r.maxBackups - 1; i >= 1; i-- {
		if err := os.Rename(r.backup(i), r.backup(i+1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to shift backup %d: %w", i, err)
		}
	}
	if err := os.Rename(r.basePath, r.backup(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rename log file: %w", err)
	}
	return nil
}
