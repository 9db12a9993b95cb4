package stage

import (
	"fmt"
	"os"
	"strings"

	"squeeze/internal/queue"
	"squeeze/internal/services"
)

// RequireSourceFile verifies the item's source file is still present and a
// regular file. Stages call it from Prepare so a vanished source fails fast
// before any external tool runs.
func RequireSourceFile(item *queue.Item) error {
	if item == nil || strings.TrimSpace(item.SourcePath) == "" {
		return services.Wrap(services.ErrValidation, "stage", "require source",
			"item has no source path", nil)
	}
	info, err := os.Stat(item.SourcePath)
	if err != nil {
		return fmt.Errorf("source file unavailable: %w", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "stage", "require source",
			fmt.Sprintf("source path %s is a directory", item.SourcePath), nil)
	}
	return nil
}
