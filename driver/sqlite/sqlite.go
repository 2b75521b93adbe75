// Package sqlite stores objects in a single SQLite database file using the
// pure Go modernc.org/sqlite driver.
//
// Every file and directory is one row keyed by its relative path.
// Directory rows end with "/" and carry no content. Each row records its
// parent directory, so one level listings are a single indexed range scan.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/gobeaver/storekit"
)

// Scheme is the identifier reported by AccessorInfo.
const Scheme = "sqlite"

const listPageSize = 256

const schema = `
CREATE TABLE IF NOT EXISTS storekit_objects (
	path          TEXT PRIMARY KEY,
	parent        TEXT NOT NULL,
	is_dir        INTEGER NOT NULL DEFAULT 0,
	content       BLOB,
	size          INTEGER NOT NULL DEFAULT 0,
	content_type  TEXT NOT NULL DEFAULT '',
	cache_control TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '',
	etag          TEXT NOT NULL DEFAULT '',
	modified      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_storekit_objects_parent ON storekit_objects(parent, path);
`

// Adapter provides a SQLite implementation of storekit.Accessor
type Adapter struct {
	db   *sql.DB
	info *storekit.AccessorInfo
}

// Open opens or creates the database at dsn and prepares the schema.
// The dsn can be a file path or ":memory:".
func Open(dsn string) (*Adapter, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storekit.NewError(storekit.KindConfigInvalid, "failed to open database").
			WithContext("dsn", dsn).
			WithSource(err)
	}

	if dsn == ":memory:" {
		// Every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	a, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.info = storekit.NewAccessorInfo(Scheme, storekit.WithRoot(dsn), storekit.WithCapability(a.info.Capability()))
	return a, nil
}

// New prepares the schema on an open database handle.
func New(db *sql.DB) (*Adapter, error) {
	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return nil, storekit.NewError(storekit.KindUnexpected, "failed to configure database").
				WithContext("pragma", pragma).
				WithSource(err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, storekit.NewError(storekit.KindUnexpected, "failed to create schema").WithSource(err)
	}

	return &Adapter{
		db: db,
		info: storekit.NewAccessorInfo(Scheme, storekit.WithCapability(storekit.Capability{
			Stat:          true,
			Read:          true,
			Write:         true,
			Delete:        true,
			CreateDir:     true,
			List:          true,
			ListRecursive: true,
			Copy:          true,
			Move:          true,
		})),
	}, nil
}

// Close closes the database.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Info implements storekit.Accessor
func (a *Adapter) Info() *storekit.AccessorInfo {
	return a.info
}

// row is one stored object
type row struct {
	path         string
	dir          bool
	size         int64
	contentType  string
	cacheControl string
	metadata     string
	etag         string
	modified     int64
}

const rowColumns = "path, is_dir, size, content_type, cache_control, metadata, etag, modified"

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*row, error) {
	var r row
	if err := s.Scan(&r.path, &r.dir, &r.size, &r.contentType, &r.cacheControl, &r.metadata, &r.etag, &r.modified); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *row) toMetadata() *storekit.Metadata {
	modified := time.Unix(0, r.modified)
	if r.dir {
		return &storekit.Metadata{Mode: storekit.ModeDir, LastModified: modified}
	}
	meta := &storekit.Metadata{
		Mode:          storekit.ModeFile,
		ContentLength: r.size,
		ContentType:   r.contentType,
		CacheControl:  r.cacheControl,
		ETag:          r.etag,
		LastModified:  modified,
	}
	if r.metadata != "" {
		_ = json.Unmarshal([]byte(r.metadata), &meta.UserMetadata)
	}
	return meta
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookup(ctx context.Context, q querier, key string) (*row, error) {
	r, err := scanRow(q.QueryRowContext(ctx, "SELECT "+rowColumns+" FROM storekit_objects WHERE path = ?", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func exists(ctx context.Context, q querier, key string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM storekit_objects WHERE path = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Stat implements storekit.Accessor
func (a *Adapter) Stat(ctx context.Context, p string, opts ...storekit.StatOption) (*storekit.Metadata, error) {
	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpStat, key); err != nil {
		return nil, err
	}
	if key == "" {
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	r, err := lookup(ctx, a.db, key)
	if err != nil {
		return nil, mapSQLiteError(storekit.OpStat, p, err)
	}
	if r == nil {
		return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpStat, p, nil)
	}

	meta := r.toMetadata()
	if !storekit.ApplyStatOptions(opts...).CheckETag(meta.ETag) {
		return nil, storekit.PathErr(storekit.KindConditionNotMatch, storekit.OpStat, p, nil).
			WithContext("etag", meta.ETag)
	}
	return meta, nil
}

// Read implements storekit.Accessor. Ranges are cut inside SQLite so only
// the requested bytes leave the database.
func (a *Adapter) Read(ctx context.Context, p string, opts ...storekit.ReadOption) (io.ReadCloser, error) {
	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpRead, key); err != nil {
		return nil, err
	}
	if key == "" || storekit.IsDirectoryPath(key) {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpRead, p, nil)
	}

	ro := storekit.ApplyReadOptions(opts...)
	length := ro.Length
	if length < 0 {
		// substr treats a negative length as "before the offset"
		length = 1<<62 - 1
	}

	var data []byte
	err := a.db.QueryRowContext(ctx,
		"SELECT substr(coalesce(content, x''), ?, ?) FROM storekit_objects WHERE path = ? AND is_dir = 0",
		ro.Offset+1, length, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpRead, p, nil)
	}
	if err != nil {
		return nil, mapSQLiteError(storekit.OpRead, p, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Write implements storekit.Accessor
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...storekit.Option) (*storekit.WriteResult, error) {
	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpWrite, key); err != nil {
		return nil, err
	}
	if key == "" || storekit.IsDirectoryPath(key) {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, p, nil)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, storekit.PathErr(storekit.KindUnexpected, storekit.OpWrite, p, err)
	}

	opts := storekit.ApplyOptions(options...)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = detectContentType(key, data)
	}
	var metadata string
	if len(opts.Metadata) > 0 {
		encoded, err := json.Marshal(opts.Metadata)
		if err != nil {
			return nil, storekit.PathErr(storekit.KindUnexpected, storekit.OpWrite, p, err)
		}
		metadata = string(encoded)
	}
	etag := etagOf(data)

	err = a.inTx(ctx, func(tx *sql.Tx) error {
		if isDir, err := exists(ctx, tx, key+"/"); err != nil {
			return err
		} else if isDir {
			return storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, p, nil)
		}
		if opts.IfNotExists {
			if found, err := exists(ctx, tx, key); err != nil {
				return err
			} else if found {
				return storekit.PathErr(storekit.KindAlreadyExists, storekit.OpWrite, p, nil)
			}
		}
		if err := ensureParentDirs(ctx, tx, storekit.OpWrite, key); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO storekit_objects (path, parent, is_dir, content, size, content_type, cache_control, metadata, etag, modified)
			VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				content = excluded.content,
				size = excluded.size,
				content_type = excluded.content_type,
				cache_control = excluded.cache_control,
				metadata = excluded.metadata,
				etag = excluded.etag,
				modified = excluded.modified`,
			key, parentOf(key), data, len(data), contentType, opts.CacheControl, metadata, etag, time.Now().UnixNano())
		return err
	})
	if err != nil {
		return nil, mapSQLiteError(storekit.OpWrite, p, err)
	}

	return &storekit.WriteResult{
		Path:         key,
		BytesWritten: int64(len(data)),
		ETag:         etag,
	}, nil
}

// Delete implements storekit.Accessor. Directories must be empty.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpDelete, key); err != nil {
		return err
	}
	if key == "" {
		return storekit.PathErr(storekit.KindPermissionDenied, storekit.OpDelete, p, nil)
	}

	err := a.inTx(ctx, func(tx *sql.Tx) error {
		if storekit.IsDirectoryPath(key) {
			var one int
			err := tx.QueryRowContext(ctx, "SELECT 1 FROM storekit_objects WHERE parent = ? LIMIT 1", key).Scan(&one)
			if err == nil {
				return storekit.PathErr(storekit.KindNotEmpty, storekit.OpDelete, p, nil)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM storekit_objects WHERE path = ?", key)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storekit.PathErr(storekit.KindNotFound, storekit.OpDelete, p, nil)
		}
		return nil
	})
	return mapSQLiteError(storekit.OpDelete, p, err)
}

// CreateDir implements storekit.Accessor
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpCreateDir, key); err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	key = storekit.EnsureDir(key)

	err := a.inTx(ctx, func(tx *sql.Tx) error {
		if isFile, err := exists(ctx, tx, strings.TrimSuffix(key, "/")); err != nil {
			return err
		} else if isFile {
			return storekit.PathErr(storekit.KindNotADirectory, storekit.OpCreateDir, p, nil)
		}
		if err := ensureParentDirs(ctx, tx, storekit.OpCreateDir, key); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO storekit_objects (path, parent, is_dir, modified) VALUES (?, ?, 1, ?)",
			key, parentOf(key), time.Now().UnixNano())
		return err
	})
	return mapSQLiteError(storekit.OpCreateDir, p, err)
}

// List implements storekit.Accessor. Pages are fetched with keyset
// pagination on the primary key.
func (a *Adapter) List(ctx context.Context, p string, opts ...storekit.ListOption) (storekit.Lister, error) {
	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpList, key); err != nil {
		return nil, err
	}

	if key != "" {
		if !storekit.IsDirectoryPath(key) {
			isFile, err := exists(ctx, a.db, key)
			if err != nil {
				return nil, mapSQLiteError(storekit.OpList, p, err)
			}
			if isFile {
				return nil, storekit.PathErr(storekit.KindNotADirectory, storekit.OpList, p, nil)
			}
			key += "/"
		}
		found, err := exists(ctx, a.db, key)
		if err != nil {
			return nil, mapSQLiteError(storekit.OpList, p, err)
		}
		if !found {
			return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpList, p, nil)
		}
	}

	lo := storekit.ApplyListOptions(opts...)
	pageSize := listPageSize
	if lo.Limit > 0 && lo.Limit < pageSize {
		pageSize = lo.Limit
	}

	return storekit.NewPageLister(func(ctx context.Context, token string) ([]*storekit.Entry, string, error) {
		after := token
		if after == "" {
			after = max(lo.StartAfter, key)
		}

		var rows *sql.Rows
		var err error
		if lo.Recursive {
			rows, err = a.db.QueryContext(ctx,
				"SELECT "+rowColumns+" FROM storekit_objects WHERE path > ? AND substr(path, 1, ?) = ? ORDER BY path LIMIT ?",
				after, len(key), key, pageSize)
		} else {
			rows, err = a.db.QueryContext(ctx,
				"SELECT "+rowColumns+" FROM storekit_objects WHERE parent = ? AND path > ? ORDER BY path LIMIT ?",
				key, after, pageSize)
		}
		if err != nil {
			return nil, "", mapSQLiteError(storekit.OpList, p, err)
		}
		defer rows.Close()

		var entries []*storekit.Entry
		for rows.Next() {
			r, err := scanRow(rows)
			if err != nil {
				return nil, "", mapSQLiteError(storekit.OpList, p, err)
			}
			entries = append(entries, storekit.NewEntry(r.path, r.toMetadata()))
		}
		if err := rows.Err(); err != nil {
			return nil, "", mapSQLiteError(storekit.OpList, p, err)
		}

		var next string
		if len(entries) == pageSize {
			next = entries[len(entries)-1].Path
		}
		return entries, next, nil
	}), nil
}

// Copy implements storekit.CanCopy inside a single transaction.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	err := a.inTx(ctx, func(tx *sql.Tx) error {
		return copyTx(ctx, tx, storekit.OpCopy, src, dst)
	})
	return mapSQLiteError(storekit.OpCopy, src, err)
}

// Move implements storekit.CanMove inside a single transaction.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if storekit.RelPath(src) == storekit.RelPath(dst) {
		return nil
	}
	err := a.inTx(ctx, func(tx *sql.Tx) error {
		if err := copyTx(ctx, tx, storekit.OpMove, src, dst); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM storekit_objects WHERE path = ?", storekit.RelPath(src))
		return err
	})
	return mapSQLiteError(storekit.OpMove, src, err)
}

func copyTx(ctx context.Context, tx *sql.Tx, op storekit.Operation, src, dst string) error {
	srcKey, dstKey := storekit.RelPath(src), storekit.RelPath(dst)
	for _, k := range []string{srcKey, dstKey} {
		if err := storekit.CheckPath(op, k); err != nil {
			return err
		}
		if k == "" || storekit.IsDirectoryPath(k) {
			return storekit.PathErr(storekit.KindIsADirectory, op, k, nil)
		}
	}

	if found, err := exists(ctx, tx, srcKey); err != nil {
		return err
	} else if !found {
		return storekit.PathErr(storekit.KindNotFound, op, src, nil)
	}
	if err := ensureParentDirs(ctx, tx, op, dstKey); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO storekit_objects (path, parent, is_dir, content, size, content_type, cache_control, metadata, etag, modified)
		SELECT ?, ?, 0, content, size, content_type, cache_control, metadata, etag, ?
		FROM storekit_objects WHERE path = ?`,
		dstKey, parentOf(dstKey), time.Now().UnixNano(), srcKey)
	return err
}

func (a *Adapter) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ensureParentDirs inserts a directory row for every ancestor of key.
// It fails if an ancestor is already a file.
func ensureParentDirs(ctx context.Context, tx *sql.Tx, op storekit.Operation, key string) error {
	trimmed := strings.TrimSuffix(key, "/")
	now := time.Now().UnixNano()
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] != '/' {
			continue
		}
		dir := trimmed[:i]
		if isFile, err := exists(ctx, tx, dir); err != nil {
			return err
		} else if isFile {
			return storekit.PathErr(storekit.KindNotADirectory, op, dir, nil)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO storekit_objects (path, parent, is_dir, modified) VALUES (?, ?, 1, ?)",
			dir+"/", parentOf(dir+"/"), now); err != nil {
			return err
		}
	}
	return nil
}

// parentOf returns the directory key holding key, "" for top level entries.
func parentOf(key string) string {
	parent := storekit.ParentDir(key)
	if parent == "/" {
		return ""
	}
	return parent
}

func etagOf(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func detectContentType(key string, data []byte) string {
	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		return contentType
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "application/octet-stream"
}

// mapSQLiteError wraps database failures. storekit errors and context
// errors pass through unchanged.
func mapSQLiteError(op storekit.Operation, p string, err error) error {
	if err == nil {
		return nil
	}
	var se *storekit.Error
	if errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return storekit.PathErr(storekit.KindUnexpected, op, p, err)
}

var (
	_ storekit.Accessor = (*Adapter)(nil)
	_ storekit.CanCopy  = (*Adapter)(nil)
	_ storekit.CanMove  = (*Adapter)(nil)
	_ io.Closer         = (*Adapter)(nil)
)
