package utils

import "path/filepath"

// ResolvePath interprets path relative to the directory of the file that
// referenced it.
func ResolvePath(referrer, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(referrer), path)
}
