package artifact

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// DefaultFileMode is used for archives and rendered documents.
	DefaultFileMode os.FileMode = 0o644

	// DefaultChecksumFunction is used to hash archives for verification and submission.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512
)

var errHashUnavailable = errors.New("hash function unavailable")

// Workspace resolves release files against a working directory.
type Workspace struct {
	// root is the directory every name is relative to.
	root string
}

// NewWorkspace creates a workspace rooted at dir.
func NewWorkspace(dir string) *Workspace {
	if dir == "" {
		dir = "."
	}

	return &Workspace{
		root: filepath.Clean(dir),
	}
}

// Root returns the working directory.
func (w *Workspace) Root() string {
	return w.root
}

// Path returns the location of name inside the workspace.
func (w *Workspace) Path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}

	return filepath.Join(w.root, name)
}

// Exists reports whether name is present in the workspace.
func (w *Workspace) Exists(name string) bool {
	_, err := os.Stat(w.Path(name))

	return err == nil
}

// WriteFile writes data to name.
func (w *Workspace) WriteFile(name string, data []byte) error {
	if err := os.WriteFile(w.Path(name), data, DefaultFileMode); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}

// Rename moves oldName to newName.
func (w *Workspace) Rename(oldName, newName string) error {
	if err := os.Rename(w.Path(oldName), w.Path(newName)); err != nil {
		return fmt.Errorf("rename %s: %w", oldName, err)
	}

	return nil
}

// Remove deletes a file; a missing file is not an error.
func (w *Workspace) Remove(name string) error {
	if err := os.Remove(w.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}

	return nil
}

// RemoveAll deletes a directory tree.
func (w *Workspace) RemoveAll(name string) error {
	if err := os.RemoveAll(w.Path(name)); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}

	return nil
}

// Size returns the size of name in bytes.
func (w *Workspace) Size(name string) (int64, error) {
	info, err := os.Stat(w.Path(name))
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", name, err)
	}

	return info.Size(), nil
}

// Checksum returns checksum bytes for name using DefaultChecksumFunction.
func (w *Workspace) Checksum(name string) ([]byte, error) {
	file, err := os.Open(w.Path(name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	defer func() {
		_ = file.Close()
	}()

	return checksum(file)
}

// Promote atomically replaces dst with a copy of src, verifying the copy
// against the checksum of src.
func (w *Workspace) Promote(src, dst string) error {
	data, err := os.ReadFile(w.Path(src))
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	sum, err := checksum(bytes.NewReader(data))
	if err != nil {
		return err
	}

	target := w.Path(dst)

	// The replacement renames the current target aside, so it has to exist.
	if _, err = os.Stat(target); errors.Is(err, os.ErrNotExist) {
		if err = os.WriteFile(target, nil, DefaultFileMode); err != nil {
			return fmt.Errorf("create %s: %w", dst, err)
		}
	}

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: DefaultFileMode,
		Checksum:   sum,
		Hash:       DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("replace %s with %s: %w", dst, src, err)
	}

	_ = os.Remove(target + ".old")

	return nil
}

func checksum(r io.Reader) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}
