// internal/supervisor/platform.go
package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
)

// native is the Platform for the running OS. Its methods live in the build-tagged
// files alongside this one.
type native struct {
	procRoot string
}

// NativePlatform returns the Platform for the current operating system.
func NativePlatform() Platform {
	return &native{procRoot: "/proc"}
}

// openServerLog truncates and opens the file a spawned server writes its output to.
func openServerLog(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create server log dir: %w", err)
		}
	}
	return os.Create(path)
}
