package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starford/postdesk/internal/apperr"
)

const tmpPrefix = ".postdesk-tmp-"

// Store implements Provider backed by a single directory on disk.
type Store struct {
	root   string // absolute path to the sandbox root
	scheme string

	mu        sync.RWMutex
	listeners []func([]FileChange)

	// beforeRename runs after the temp file is complete and before it is
	// renamed into place. Tests use it to simulate an interrupted write.
	beforeRename func(tmp, dst string) error
}

var _ Provider = (*Store)(nil)

// New creates a store rooted at root, creating the directory if needed.
func New(root, scheme string) (*Store, error) {
	if scheme == "" {
		return nil, errors.New("vfs: scheme is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vfs: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("vfs: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vfs: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vfs: root is not a directory: %s", abs)
	}
	return &Store{root: abs, scheme: scheme}, nil
}

// Root returns the absolute sandbox directory.
func (s *Store) Root() string { return s.root }

// Scheme returns the URI scheme served by the store.
func (s *Store) Scheme() string { return s.scheme }

// URI returns "<scheme>:/<path>".
func (s *Store) URI(p string) string {
	p = strings.TrimPrefix(s.stripScheme(p), "/")
	return s.scheme + ":/" + p
}

// Resolve maps a URI or scheme-relative path to its absolute location and
// rejects anything that escapes the sandbox root.
func (s *Store) Resolve(p string) (string, error) {
	abs, ok := s.resolve(p)
	if !ok {
		return "", fmt.Errorf("vfs: path escapes sandbox root: %s: %w", p, apperr.ErrNotFound)
	}
	return abs, nil
}

// Rel maps an absolute path back to a scheme-relative one.
func (s *Store) Rel(abs string) (string, bool) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", false
	}
	if rel == "." {
		return "/", true
	}
	return "/" + filepath.ToSlash(rel), true
}

func (s *Store) stripScheme(p string) string {
	return strings.TrimPrefix(p, s.scheme+":")
}

func (s *Store) resolve(p string) (string, bool) {
	p = strings.TrimLeft(s.stripScheme(p), "/")
	joined := filepath.Join(s.root, filepath.FromSlash(p))
	if joined != s.root && !strings.HasPrefix(joined, s.root+string(os.PathSeparator)) {
		return "", false
	}
	return joined, true
}

func (s *Store) display(abs string) string {
	rel, ok := s.Rel(abs)
	if !ok {
		return abs
	}
	return rel
}

// fsError maps an os error to one of the apperr file kinds.
func fsError(op, p string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("vfs: %s %s: %w", op, p, apperr.ErrNotFound)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("vfs: %s %s: %w", op, p, apperr.ErrAlreadyExists)
	default:
		return fmt.Errorf("vfs: %s %s: %w: %w", op, p, apperr.ErrUnavailable, err)
	}
}

func typeOf(info fs.FileInfo) FileType {
	switch {
	case info.IsDir():
		return TypeDirectory
	case info.Mode().IsRegular():
		return TypeFile
	default:
		return TypeUnknown
	}
}

// OnDidChange registers fn for change notifications.
func (s *Store) OnDidChange(fn func([]FileChange)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) emit(changes ...FileChange) {
	s.mu.RLock()
	ls := make([]func([]FileChange), len(s.listeners))
	copy(ls, s.listeners)
	s.mu.RUnlock()
	for _, fn := range ls {
		fn(changes)
	}
}

// Stat returns metadata for path.
func (s *Store) Stat(p string) (FileStat, error) {
	abs, err := s.Resolve(p)
	if err != nil {
		return FileStat{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FileStat{}, fsError("stat", p, err)
	}
	return FileStat{Type: typeOf(info), Size: info.Size(), ModTime: info.ModTime()}, nil
}

// ReadDirectory lists the entries of a directory. In-flight temp files are hidden.
func (s *Store) ReadDirectory(p string) ([]DirEntry, error) {
	abs, err := s.Resolve(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fsError("readdir", p, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, DirEntry{Name: e.Name(), Type: typeOf(info)})
	}
	return out, nil
}

// CreateDirectory creates a directory and any missing parents.
func (s *Store) CreateDirectory(p string) error {
	abs, err := s.Resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return fsError("mkdir", p, err)
	}
	s.emit(FileChange{Type: Created, Path: s.display(abs)})
	return nil
}

// ReadFile returns the content at path.
func (s *Store) ReadFile(p string) ([]byte, error) {
	abs, err := s.Resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fsError("read", p, err)
	}
	return data, nil
}

// WriteFile atomically writes content: tmp file → fsync → rename.
// A reader sees either the old or the new content, never a partial file.
func (s *Store) WriteFile(p string, content []byte, opts WriteOptions) error {
	abs, err := s.Resolve(p)
	if err != nil {
		return err
	}

	info, statErr := os.Stat(abs)
	exists := statErr == nil
	switch {
	case statErr != nil && !errors.Is(statErr, fs.ErrNotExist):
		return fsError("write", p, statErr)
	case exists && info.IsDir():
		return fmt.Errorf("vfs: write %s: is a directory: %w", p, apperr.ErrUnavailable)
	case !exists && !opts.Create:
		return fmt.Errorf("vfs: write %s: %w", p, apperr.ErrNotFound)
	case exists && !opts.Overwrite:
		return fmt.Errorf("vfs: write %s: %w", p, apperr.ErrAlreadyExists)
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fsError("mkdir", p, err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fsError("create temp", p, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fsError("write temp", p, err)
	}
	if err := tmp.Sync(); err != nil {
		return fsError("fsync", p, err)
	}
	if err := tmp.Close(); err != nil {
		return fsError("close temp", p, err)
	}
	if s.beforeRename != nil {
		if err := s.beforeRename(tmpName, abs); err != nil {
			return fsError("rename", p, err)
		}
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fsError("rename", p, err)
	}
	success = true

	kind := Changed
	if !exists {
		kind = Created
	}
	s.emit(FileChange{Type: kind, Path: s.display(abs)})
	return nil
}

// Delete removes a file, or a directory tree when opts.Recursive is set.
func (s *Store) Delete(p string, opts DeleteOptions) error {
	abs, err := s.Resolve(p)
	if err != nil {
		return err
	}
	if abs == s.root {
		return fmt.Errorf("vfs: delete %s: refusing to delete sandbox root: %w", p, apperr.ErrUnavailable)
	}
	if _, err := os.Lstat(abs); err != nil {
		return fsError("delete", p, err)
	}
	if opts.Recursive {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil {
		return fsError("delete", p, err)
	}
	s.emit(FileChange{Type: Deleted, Path: s.display(abs)})
	return nil
}

// Rename moves oldPath to newPath inside the sandbox.
func (s *Store) Rename(oldPath, newPath string, opts RenameOptions) error {
	absOld, err := s.Resolve(oldPath)
	if err != nil {
		return err
	}
	absNew, err := s.Resolve(newPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absOld); err != nil {
		return fsError("rename", oldPath, err)
	}
	if _, err := os.Stat(absNew); err == nil && !opts.Overwrite {
		return fmt.Errorf("vfs: rename %s: %w", newPath, apperr.ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o700); err != nil {
		return fsError("mkdir", newPath, err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fsError("rename", oldPath, err)
	}
	s.emit(
		FileChange{Type: Deleted, Path: s.display(absOld)},
		FileChange{Type: Created, Path: s.display(absNew)},
	)
	return nil
}

// ClearAll recursively empties the sandbox and recreates its root.
func (s *Store) ClearAll() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fsError("clear", "/", err)
	}
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return fsError("clear", "/", err)
	}
	s.emit(FileChange{Type: Deleted, Path: "/"})
	return nil
}

// IsTemp reports whether name is an in-flight write file.
func IsTemp(name string) bool {
	return strings.HasPrefix(filepath.Base(name), tmpPrefix)
}
