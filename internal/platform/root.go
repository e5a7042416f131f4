package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// RootMarker is the file that marks the root of a data directory.
const RootMarker = "expipe.yaml"

// ErrNoRoot is returned by FindRoot when no marker is found.
var ErrNoRoot = errors.New("root not found")

// FindRoot walks up from startDir to the nearest directory holding a
// RootMarker and returns its absolute path.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for dir := abs; ; {
		if hasFile(dir, RootMarker) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoRoot
		}
		dir = parent
	}
}

func hasFile(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !info.IsDir()
}
