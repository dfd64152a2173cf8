package sqlite

import (
	"os"
	"path/filepath"
	"strings"
)

// dbDirMode keeps the directory holding client tokens private to the owner.
const dbDirMode = 0o700

// ensureParentDir creates the directory of a file-backed database. In-memory
// and URI paths are left to the driver.
func ensureParentDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	return os.MkdirAll(dir, dbDirMode)
}
