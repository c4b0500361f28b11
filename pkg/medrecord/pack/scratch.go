package pack

import (
	"fmt"
	"os"
)

// newScratchDir creates a working directory exclusively owned by one
// export or import call. The primary root is tried first, then the
// fallback root, then the system temp directory. The returned cleanup
// removes the directory and must run on every exit path.
func newScratchDir(primary, fallback string) (string, func(), error) {
	var lastErr error
	for _, root := range []string{primary, fallback, ""} {
		if root != "" {
			if err := os.MkdirAll(root, 0755); err != nil {
				lastErr = err
				continue
			}
		}
		dir, err := os.MkdirTemp(root, "medpack-*")
		if err != nil {
			lastErr = err
			continue
		}
		cleanup := func() { os.RemoveAll(dir) }
		return dir, cleanup, nil
	}
	return "", nil, fmt.Errorf("failed to create working directory: %w", lastErr)
}
