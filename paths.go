package storekit

import (
	"strings"
)

// IsDirectoryPath reports whether p is shaped like a directory: the root "/"
// or any path ending with "/". No normalization is applied.
func IsDirectoryPath(p string) bool {
	return p == "/" || strings.HasSuffix(p, "/")
}

// EnsureDir returns p with a trailing "/". The empty path becomes "/".
func EnsureDir(p string) string {
	if p == "" {
		return "/"
	}
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// ParentDir returns the directory containing p, always ending with "/".
// The parent of a top level entry is "/".
func ParentDir(p string) string {
	trimmed := strings.TrimPrefix(strings.TrimSuffix(p, "/"), "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "/"
	}
	return trimmed[:idx+1]
}

// RelPath turns a caller path into the form drivers key their objects by:
// no leading "/", root as "". A trailing "/" is kept.
func RelPath(p string) string {
	if p == "/" {
		return ""
	}
	return strings.TrimLeft(p, "/")
}

// CheckPath rejects paths that try to climb out of the accessor root.
func CheckPath(op Operation, p string) error {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return NewError(KindPermissionDenied, "path escapes the accessor root").
				WithOperation(op).
				WithContext("path", p)
		}
	}
	return nil
}

// Join joins a driver prefix and a relative path with exactly one "/"
// between them. The trailing "/" of rel is kept.
func Join(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	if rel == "" {
		return EnsureDir(prefix)
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimLeft(rel, "/")
}
