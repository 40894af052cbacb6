// Package vfs implements the sandboxed virtual file store that backs
// editable post documents under a custom URI scheme.
package vfs

import "time"

// FileType describes the kind of entry at a path.
type FileType int

// File types.
const (
	TypeUnknown FileType = iota
	TypeFile
	TypeDirectory
)

func (t FileType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// FileStat is returned by Stat.
type FileStat struct {
	Type    FileType
	Size    int64
	ModTime time.Time
}

// DirEntry is a single entry returned by ReadDirectory.
type DirEntry struct {
	Name string
	Type FileType
}

// WriteOptions control WriteFile behaviour when the target does or does not exist.
type WriteOptions struct {
	Create    bool
	Overwrite bool
}

// DeleteOptions control Delete.
type DeleteOptions struct {
	Recursive bool
}

// RenameOptions control Rename.
type RenameOptions struct {
	Overwrite bool
}

// ChangeType is the kind of a FileChange.
type ChangeType int

// Change types.
const (
	Changed ChangeType = iota + 1
	Created
	Deleted
)

func (c ChangeType) String() string {
	switch c {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileChange describes one mutation. Path is scheme-relative ("/slug.mdx").
type FileChange struct {
	Type ChangeType
	Path string
}

// Provider is the interface for virtual document operations.
// All paths are either "<scheme>:/name" URIs or scheme-relative paths.
type Provider interface {
	Stat(path string) (FileStat, error)
	ReadDirectory(path string) ([]DirEntry, error)
	CreateDirectory(path string) error
	ReadFile(path string) ([]byte, error)
	// WriteFile writes through a temporary sibling file renamed into place.
	WriteFile(path string, content []byte, opts WriteOptions) error
	Delete(path string, opts DeleteOptions) error
	Rename(oldPath, newPath string, opts RenameOptions) error
	// ClearAll empties and recreates the sandbox root.
	ClearAll() error
	// OnDidChange registers fn to receive change batches for the lifetime of the store.
	OnDidChange(fn func([]FileChange))
	// URI returns the scheme-qualified form of path.
	URI(path string) string
	// Resolve maps path to its absolute location on disk.
	Resolve(path string) (string, error)
}
