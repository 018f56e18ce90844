// Package workspace manages the per-session directory that generated code is
// written to and executed in.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrFilesystem is matched by every error that means the workspace directory
// cannot be created or written.
var ErrFilesystem = errors.New("workspace filesystem error")

// FilesystemError records the path and operation that failed.
type FilesystemError struct {
	Path string
	Op   string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("workspace %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

func (e *FilesystemError) Is(target error) bool { return target == ErrFilesystem }

// scriptPrefix names generated source files: snippet_0001.py, snippet_0002.sh, ...
const scriptPrefix = "snippet_"

// Workspace is a directory owned by a single session. Files written to it are
// never removed by this package.
type Workspace struct {
	dir string

	mu  sync.Mutex
	seq int
}

// Ensure creates path (and any parents) if needed and returns a handle to it.
// It is idempotent: an existing directory is reused as-is.
func Ensure(path string) (*Workspace, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &FilesystemError{Path: path, Op: "resolve", Err: errors.New("path is empty")}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &FilesystemError{Path: path, Op: "resolve", Err: err}
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil && !info.IsDir():
		return nil, &FilesystemError{Path: abs, Op: "create", Err: errors.New("path exists and is not a directory")}
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, &FilesystemError{Path: abs, Op: "stat", Err: err}
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &FilesystemError{Path: abs, Op: "create", Err: err}
	}

	if err := probeWritable(abs); err != nil {
		return nil, &FilesystemError{Path: abs, Op: "write", Err: err}
	}

	return &Workspace{dir: abs}, nil
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

// Dir returns the absolute workspace path.
func (w *Workspace) Dir() string {
	return w.dir
}

// NewScript writes content to the next sequence-numbered file with the given
// extension and returns its path relative to the workspace. Existing files
// are never overwritten; the sequence skips past them.
func (w *Workspace) NewScript(ext, content string) (string, error) {
	ext = strings.TrimPrefix(ext, ".")

	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		w.seq++
		name := fmt.Sprintf("%s%04d.%s", scriptPrefix, w.seq, ext)
		full := filepath.Join(w.dir, name)

		f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", &FilesystemError{Path: full, Op: "create", Err: err}
		}

		_, werr := f.WriteString(content)
		cerr := f.Close()
		if werr != nil {
			return "", &FilesystemError{Path: full, Op: "write", Err: werr}
		}
		if cerr != nil {
			return "", &FilesystemError{Path: full, Op: "write", Err: cerr}
		}
		return name, nil
	}
}

// WriteFile writes content to rel inside the workspace. rel must be relative
// and must not escape the workspace.
func (w *Workspace) WriteFile(rel, content string) error {
	full, err := w.resolve(rel)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &FilesystemError{Path: full, Op: "create", Err: err}
	}

	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return &FilesystemError{Path: full, Op: "write", Err: err}
	}
	return nil
}

func (w *Workspace) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("file path is empty")
	}

	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("file path %q must be relative", rel)
	}

	full := filepath.Join(w.dir, clean)
	if !strings.HasPrefix(full+string(os.PathSeparator), w.dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("file path %q escapes workspace", rel)
	}
	return full, nil
}
