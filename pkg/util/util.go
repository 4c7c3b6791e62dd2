package util

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Permission constants for file and directory modes.
const (
	// PermUserWrite is the user-write permission bit (0200).
	PermUserWrite os.FileMode = 0200

	// UserWritableDirPerms represents the standard permissions for newly created directories (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
	// PrivateFilePerms represents permissions for in-flight temporary files (rw-------).
	// Other users must not observe half-written content.
	PrivateFilePerms os.FileMode = 0600
)

// WithUserWritePermission ensures that any directory/file permission has the owner-write
// bit (0200) set. This prevents the sync user from being locked out on subsequent runs.
func WithUserWritePermission(basePerm os.FileMode) os.FileMode {
	return basePerm | PermUserWrite
}

// NormalizePath converts a relative path into its canonical key form:
// forward slashes, no ".", no trailing separator. The result is suitable
// as a map key and for byte-wise ordering; it is NOT for direct FS access.
func NormalizePath(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// NormalizedRelPath returns the canonical relative key of absPath under root.
func NormalizedRelPath(root, absPath string) (string, error) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", fmt.Errorf("could not relativize %s under %s: %w", absPath, root, err)
	}
	key := NormalizePath(rel)
	if key == ".." || strings.HasPrefix(key, "../") {
		return "", fmt.Errorf("path %s escapes root %s", absPath, root)
	}
	return key, nil
}

// DenormalizedAbsPath converts a canonical relative key back into an
// OS-native absolute path under root, for filesystem access.
func DenormalizedAbsPath(root, relKey string) string {
	if relKey == "." {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(relKey))
}

// ParentKey returns the canonical key of the parent directory of relKey,
// or "." when relKey is a top-level entry.
func ParentKey(relKey string) string {
	parent := path.Dir(relKey)
	return parent
}

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil // No tilde, return as-is.
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}

	// Replace the tilde with the home directory.
	return filepath.Join(home, p[1:]), nil
}

// IsNestedPath reports whether child is equal to parent or located inside it.
// Both paths must be absolute and cleaned.
func IsNestedPath(parent, child string) bool {
	if parent == child {
		return true
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
