package storekit

import (
	"strings"
	"time"
)

// EntryMode is the declared type of an entry returned by a backend.
type EntryMode uint8

const (
	// ModeUnknown means the backend did not report a type.
	ModeUnknown EntryMode = iota
	// ModeFile is a regular object.
	ModeFile
	// ModeDir is a directory or common prefix.
	ModeDir
)

// String returns a short name for the mode.
func (m EntryMode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeDir:
		return "dir"
	default:
		return "unknown"
	}
}

// IsFile reports whether m is ModeFile.
func (m EntryMode) IsFile() bool { return m == ModeFile }

// IsDir reports whether m is ModeDir.
func (m EntryMode) IsDir() bool { return m == ModeDir }

// Metadata describes a single entry. Only Mode is interpreted by storekit
// itself; everything else is carried through as reported by the backend.
type Metadata struct {
	Mode          EntryMode
	ContentLength int64
	ContentType   string
	ETag          string
	LastModified  time.Time
	CacheControl  string
	Version       string
	UserMetadata  map[string]string
}

// NewMetadata returns metadata with the given mode.
func NewMetadata(mode EntryMode) *Metadata {
	return &Metadata{Mode: mode}
}

// IsFile reports whether the metadata describes a file.
func (m *Metadata) IsFile() bool { return m != nil && m.Mode == ModeFile }

// IsDir reports whether the metadata describes a directory.
func (m *Metadata) IsDir() bool { return m != nil && m.Mode == ModeDir }

// Entry is one item produced by a Lister.
type Entry struct {
	// Path is relative to the accessor root. Directories end with "/".
	Path     string
	Metadata *Metadata
}

// NewEntry creates an entry for path with the given metadata.
func NewEntry(path string, meta *Metadata) *Entry {
	return &Entry{Path: path, Metadata: meta}
}

// Mode returns the declared mode, or ModeUnknown when no metadata is attached.
func (e *Entry) Mode() EntryMode {
	if e == nil || e.Metadata == nil {
		return ModeUnknown
	}
	return e.Metadata.Mode
}

// Name returns the last path segment, keeping the trailing "/" of directories.
func (e *Entry) Name() string {
	p := e.Path
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}
