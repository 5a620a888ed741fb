package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveAssetPath expands a leading ~ and returns the absolute path of a
// regular file. An empty path resolves to "" without error.
func ResolveAssetPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("asset %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("asset %q is a directory", path)
	}
	return filepath.Clean(abs), nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
