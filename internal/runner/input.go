// internal/runner/input.go
package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/julianshen/worldforge/internal/worlderr"
)

// ResolveSnapshot determines the snapshot path from the available sources.
// Priority: argument > configured path. The file must exist.
func ResolveSnapshot(arg, configured string) (string, error) {
	path := strings.TrimSpace(arg)
	if path == "" {
		path = strings.TrimSpace(configured)
	}
	if path == "" {
		return "", worlderr.Errorf(worlderr.KindSnapshotMissing, "runner.ResolveSnapshot",
			"no snapshot given: pass a path or set paths.snapshot")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving snapshot path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", worlderr.New(worlderr.KindSnapshotMissing, "runner.ResolveSnapshot", err)
	}
	if info.IsDir() {
		return "", worlderr.Errorf(worlderr.KindSnapshotMissing, "runner.ResolveSnapshot", "%s is a directory", abs)
	}
	return abs, nil
}
