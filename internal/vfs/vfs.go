// Package vfs provides a root-confined filesystem view and the
// create-temp-then-rename primitives every durable store in this repository
// uses to persist state crash-safely.
//
// Every path accepted by a VFS method is resolved relative to a fixed root
// and rejected if it would escape that root, whether through ".." segments
// or a symlink-free absolute path outside the tree. This is the same
// confinement guarantee the Producer API needs for --file payloads (spec
// §4.6) and that every on-disk store needs so a sanitized-but-attacker-
// controlled recipient id can never be used to write outside its own
// directory.
package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// VFS is a filesystem view rooted at a fixed directory.
type VFS struct {
	root     string
	readonly bool
}

// New creates (if necessary) and returns a VFS rooted at root.
func New(root string, readonly bool) (*VFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root path: %w", err)
	}

	if !readonly {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create root: %w", err)
		}
	}

	return &VFS{root: abs, readonly: readonly}, nil
}

// Root returns the absolute root path.
func (v *VFS) Root() string { return v.root }

// Resolve validates that the given path (absolute or relative to the
// process cwd) resolves strictly inside the VFS root and returns the
// cleaned absolute path. This is the traversal guard used by the
// Producer API for --file payloads (spec §4.6, §8 "CLI confinement").
func (v *VFS) Resolve(path string) (string, error) {
	expanded := path
	if strings.HasPrefix(expanded, "~"+string(os.PathSeparator)) {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[2:])
		}
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path: %w", err)
	}
	abs = filepath.Clean(abs)

	if abs != v.root && !strings.HasPrefix(abs, v.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes root %q", path, v.root)
	}

	return abs, nil
}

// validate joins parts onto the root, rejecting ".." segments and any
// escape of the root even after Clean.
func (v *VFS) validate(parts ...string) (string, error) {
	rel := filepath.Join(parts...)
	if strings.Contains(rel, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", rel)
	}

	abs := filepath.Clean(filepath.Join(v.root, rel))
	if abs != v.root && !strings.HasPrefix(abs, v.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path outside root: %s", rel)
	}
	return abs, nil
}

// Path returns the absolute path for parts relative to root.
func (v *VFS) Path(parts ...string) (string, error) {
	return v.validate(parts...)
}

// MkdirAll ensures the directory named by parts exists.
func (v *VFS) MkdirAll(parts ...string) error {
	path, err := v.validate(parts...)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0o755)
}

// ReadFile reads the file named by parts.
func (v *VFS) ReadFile(parts ...string) ([]byte, error) {
	path, err := v.validate(parts...)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Remove removes the file named by parts. A missing file is not an error.
func (v *VFS) Remove(parts ...string) error {
	path, err := v.validate(parts...)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Rename moves srcParts to dstParts, both resolved relative to root.
// Returns (false, nil) instead of an error when src no longer exists,
// since the caller (store claim/requeue logic) treats "someone else already
// claimed it" as a normal outcome, not a failure.
func (v *VFS) Rename(src, dst string) (bool, error) {
	srcPath, err := v.validate(src)
	if err != nil {
		return false, err
	}
	dstPath, err := v.validate(dst)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return false, fmt.Errorf("failed to create destination dir: %w", err)
	}

	if err := os.Rename(srcPath, dstPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadDir lists entries directly under the directory named by parts.
func (v *VFS) ReadDir(parts ...string) ([]os.DirEntry, error) {
	path, err := v.validate(parts...)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

// Stat stats the path named by parts.
func (v *VFS) Stat(parts ...string) (os.FileInfo, error) {
	path, err := v.validate(parts...)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// AtomicWrite writes data to the file named by parts using a
// create-temp-with-random-suffix-then-rename sequence, so concurrent
// writers (or a crash mid-write) never produce a torn read. This is the
// single code path every durable store in this repository uses to persist
// a file (spec §9 "Filesystem-as-mailbox").
func (v *VFS) AtomicWrite(data []byte, parts ...string) error {
	if v.readonly {
		return fmt.Errorf("vfs is read-only")
	}

	path, err := v.validate(parts...)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%s", filepath.Base(path), uuid.New().String()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
