// Package staging sweeps the per-item work directories that stages create
// under paths.staging_dir.
package staging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"squeeze/internal/logging"
)

// SweepResult reports which directories a sweep removed and which removals
// failed.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs a directory with the error that kept it in place.
type SweepError struct {
	Path string
	Err  error
}

// SweepOrphans removes item-<id> directories under root whose id has no row
// in live. Entries that do not match the item-<id> pattern are left alone;
// stages own their active directories and recreate them on demand.
func SweepOrphans(root string, live map[int64]struct{}, logger *slog.Logger) SweepResult {
	var result SweepResult

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: root, Err: err})
		}
		return result
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, ok := parseItemDir(entry.Name())
		if !ok {
			continue
		}
		if _, alive := live[id]; alive {
			continue
		}

		dirPath := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: dirPath, Err: err})
			if logger != nil {
				logger.Warn("failed to remove orphaned staging directory",
					logging.String("path", dirPath),
					logging.Error(err),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		if logger != nil {
			logger.Info("removed orphaned staging directory",
				logging.String("path", dirPath),
				logging.Int64("item_id", id),
			)
		}
	}

	return result
}

func parseItemDir(name string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, "item-")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
