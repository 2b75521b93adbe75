// Package sftp provides a storekit accessor for a directory on an SFTP
// server.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/gobeaver/storekit"
)

// Scheme is the identifier reported by AccessorInfo.
const Scheme = "sftp"

// Adapter provides an SFTP implementation of storekit.Accessor
type Adapter struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   Config
	info     *storekit.AccessorInfo
}

// Config holds SFTP connection configuration
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // PEM encoded private key
	BasePath   string
	// HostKeyCallback verifies the server key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback
	Timeout         time.Duration
}

// AdapterOption is a function that configures SFTP Adapter
type AdapterOption func(*Adapter)

// WithBasePath sets the base path for SFTP operations
func WithBasePath(basePath string) AdapterOption {
	return func(a *Adapter) {
		a.basePath = basePath
	}
}

// New dials the server described by cfg and returns an adapter rooted at
// cfg.BasePath.
func New(cfg Config, options ...AdapterOption) (*Adapter, error) {
	adapter := newAdapter(cfg.BasePath, options...)
	adapter.config = cfg

	if err := adapter.connect(); err != nil {
		return nil, err
	}
	return adapter, nil
}

// NewFromClient wraps an established SFTP client. The adapter does not
// reconnect it.
func NewFromClient(client *sftp.Client, basePath string, options ...AdapterOption) *Adapter {
	adapter := newAdapter(basePath, options...)
	adapter.client = client
	return adapter
}

func newAdapter(basePath string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{basePath: basePath}
	for _, option := range options {
		option(adapter)
	}
	if adapter.basePath == "" {
		adapter.basePath = "."
	}

	adapter.info = storekit.NewAccessorInfo(Scheme,
		storekit.WithRoot(adapter.basePath),
		storekit.WithCapability(storekit.Capability{
			Stat:          true,
			Read:          true,
			Write:         true,
			Delete:        true,
			CreateDir:     true,
			List:          true,
			ListRecursive: true,
			Copy:          true,
			Move:          true,
		}))
	return adapter
}

// connect establishes SSH and SFTP connections. The caller must not hold mu.
func (a *Adapter) connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	hostKey := a.config.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in verification via Config.HostKeyCallback
	}

	sshConfig := &ssh.ClientConfig{
		User:            a.config.Username,
		HostKeyCallback: hostKey,
		Timeout:         a.config.Timeout,
	}

	if len(a.config.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(a.config.PrivateKey)
		if err != nil {
			return storekit.NewError(storekit.KindConfigInvalid, "failed to parse private key").WithSource(err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}
	if a.config.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(a.config.Password))
	}
	if len(sshConfig.Auth) == 0 {
		return storekit.NewError(storekit.KindConfigInvalid, "no authentication method provided")
	}

	port := a.config.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", a.config.Host, port)
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return storekit.NewError(storekit.KindUnexpected, "failed to connect to SSH").
			WithContext("addr", addr).
			WithSource(err)
	}

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return storekit.NewError(storekit.KindUnexpected, "failed to create SFTP client").
			WithContext("addr", addr).
			WithSource(err)
	}

	a.sshConn = sshConn
	a.client = sftpClient
	return nil
}

// Close closes the SFTP and SSH connections
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			errs = append(errs, err)
		}
		a.client = nil
	}
	if a.sshConn != nil {
		if err := a.sshConn.Close(); err != nil {
			errs = append(errs, err)
		}
		a.sshConn = nil
	}
	return errors.Join(errs...)
}

// conn returns a live client, redialing when the adapter owns the
// connection and it has dropped.
func (a *Adapter) conn(op storekit.Operation, p string) (*sftp.Client, error) {
	a.mu.Lock()
	client := a.client
	dialed := a.config.Host != ""
	a.mu.Unlock()

	if client != nil {
		if !dialed {
			return client, nil
		}
		if _, err := client.Getwd(); err == nil {
			return client, nil
		}
		a.Close()
	}
	if !dialed {
		return nil, storekit.PathErr(storekit.KindUnexpected, op, p, errors.New("sftp client is closed"))
	}

	if err := a.connect(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client, nil
}

// resolve returns a live client and the remote path for p.
func (a *Adapter) resolve(ctx context.Context, op storekit.Operation, p string) (*sftp.Client, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	rel := storekit.RelPath(p)
	if err := storekit.CheckPath(op, rel); err != nil {
		return nil, "", err
	}
	client, err := a.conn(op, p)
	if err != nil {
		return nil, "", err
	}
	return client, path.Join(a.basePath, rel), nil
}

// Info implements storekit.Accessor
func (a *Adapter) Info() *storekit.AccessorInfo {
	return a.info
}

// Stat implements storekit.Accessor. As on a local disk, directory shaped
// paths only match directories and other paths only match files.
func (a *Adapter) Stat(ctx context.Context, p string, opts ...storekit.StatOption) (*storekit.Metadata, error) {
	client, full, err := a.resolve(ctx, storekit.OpStat, p)
	if err != nil {
		return nil, err
	}

	info, err := client.Stat(full)
	if err != nil {
		return nil, mapSFTPError(storekit.OpStat, p, err)
	}

	wantDir := storekit.RelPath(p) == "" || storekit.IsDirectoryPath(p)
	switch {
	case wantDir && !info.IsDir():
		return nil, storekit.PathErr(storekit.KindNotADirectory, storekit.OpStat, p, nil)
	case !wantDir && info.IsDir():
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpStat, p, nil)
	}

	meta := toMetadata(info)
	if !storekit.ApplyStatOptions(opts...).CheckETag(meta.ETag) {
		return nil, storekit.PathErr(storekit.KindConditionNotMatch, storekit.OpStat, p, nil)
	}
	return meta, nil
}

// Read implements storekit.Accessor
func (a *Adapter) Read(ctx context.Context, p string, opts ...storekit.ReadOption) (io.ReadCloser, error) {
	if storekit.IsDirectoryPath(p) || storekit.RelPath(p) == "" {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpRead, p, nil)
	}
	client, full, err := a.resolve(ctx, storekit.OpRead, p)
	if err != nil {
		return nil, err
	}

	f, err := client.Open(full)
	if err != nil {
		return nil, mapSFTPError(storekit.OpRead, p, err)
	}

	ro := storekit.ApplyReadOptions(opts...)
	if !ro.IsRange() {
		return f, nil
	}
	if _, err := f.Seek(ro.Offset, io.SeekStart); err != nil {
		f.Close()
		return nil, mapSFTPError(storekit.OpRead, p, err)
	}
	var r io.Reader = f
	if ro.Length >= 0 {
		r = io.LimitReader(f, ro.Length)
	}
	return struct {
		io.Reader
		io.Closer
	}{r, f}, nil
}

// Write implements storekit.Accessor
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...storekit.Option) (*storekit.WriteResult, error) {
	if storekit.IsDirectoryPath(p) || storekit.RelPath(p) == "" {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, p, nil)
	}
	client, full, err := a.resolve(ctx, storekit.OpWrite, p)
	if err != nil {
		return nil, err
	}

	opts := storekit.ApplyOptions(options...)
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if opts.IfNotExists {
		// Not every server honours O_EXCL
		if _, err := client.Stat(full); err == nil {
			return nil, storekit.PathErr(storekit.KindAlreadyExists, storekit.OpWrite, p, nil)
		}
		flags |= os.O_EXCL
	}

	if err := client.MkdirAll(path.Dir(full)); err != nil {
		return nil, mapSFTPError(storekit.OpWrite, p, err)
	}

	f, err := client.OpenFile(full, flags)
	if err != nil {
		return nil, mapSFTPError(storekit.OpWrite, p, err)
	}

	n, err := io.Copy(f, content)
	if err != nil {
		f.Close()
		return nil, mapSFTPError(storekit.OpWrite, p, err)
	}
	if err := f.Close(); err != nil {
		return nil, mapSFTPError(storekit.OpWrite, p, err)
	}

	return &storekit.WriteResult{
		Path:         storekit.RelPath(p),
		BytesWritten: n,
	}, nil
}

// Delete implements storekit.Accessor. Directories must be empty.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	if storekit.RelPath(p) == "" {
		return storekit.PathErr(storekit.KindPermissionDenied, storekit.OpDelete, p, nil)
	}
	client, full, err := a.resolve(ctx, storekit.OpDelete, p)
	if err != nil {
		return err
	}

	info, err := client.Stat(full)
	if err != nil {
		return mapSFTPError(storekit.OpDelete, p, err)
	}

	if !info.IsDir() {
		if err := client.Remove(full); err != nil {
			return mapSFTPError(storekit.OpDelete, p, err)
		}
		return nil
	}

	if !storekit.IsDirectoryPath(p) {
		return storekit.PathErr(storekit.KindIsADirectory, storekit.OpDelete, p, nil)
	}
	children, err := client.ReadDir(full)
	if err != nil {
		return mapSFTPError(storekit.OpDelete, p, err)
	}
	if len(children) > 0 {
		return storekit.PathErr(storekit.KindNotEmpty, storekit.OpDelete, p, nil)
	}
	if err := client.RemoveDirectory(full); err != nil {
		return mapSFTPError(storekit.OpDelete, p, err)
	}
	return nil
}

// CreateDir implements storekit.Accessor
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	client, full, err := a.resolve(ctx, storekit.OpCreateDir, p)
	if err != nil {
		return err
	}
	if err := client.MkdirAll(full); err != nil {
		return mapSFTPError(storekit.OpCreateDir, p, err)
	}
	return nil
}

// List implements storekit.Accessor. Each directory is read when the
// lister reaches it; recursive listings descend depth first.
func (a *Adapter) List(ctx context.Context, p string, opts ...storekit.ListOption) (storekit.Lister, error) {
	client, full, err := a.resolve(ctx, storekit.OpList, p)
	if err != nil {
		return nil, err
	}

	info, err := client.Stat(full)
	if err != nil {
		return nil, mapSFTPError(storekit.OpList, p, err)
	}
	if !info.IsDir() {
		return nil, storekit.PathErr(storekit.KindNotADirectory, storekit.OpList, p, nil)
	}

	key := storekit.RelPath(p)
	if key != "" {
		key = storekit.EnsureDir(key)
	}

	lo := storekit.ApplyListOptions(opts...)
	return &lister{
		client:     client,
		basePath:   a.basePath,
		recursive:  lo.Recursive,
		startAfter: lo.StartAfter,
		pending:    []string{key},
	}, nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements storekit.CanCopy by reading and writing via SFTP.
// SFTP has no native copy command, so content passes through this process.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	client, srcPath, err := a.resolve(ctx, storekit.OpCopy, src)
	if err != nil {
		return err
	}
	_, dstPath, err := a.resolve(ctx, storekit.OpCopy, dst)
	if err != nil {
		return err
	}

	srcFile, err := client.Open(srcPath)
	if err != nil {
		return mapSFTPError(storekit.OpCopy, src, err)
	}
	defer srcFile.Close()

	if err := client.MkdirAll(path.Dir(dstPath)); err != nil {
		return mapSFTPError(storekit.OpCopy, dst, err)
	}

	dstFile, err := client.Create(dstPath)
	if err != nil {
		return mapSFTPError(storekit.OpCopy, dst, err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return mapSFTPError(storekit.OpCopy, dst, err)
	}
	return nil
}

// Move implements storekit.CanMove using SFTP's native Rename. Plain
// SFTP rename refuses to replace an existing target, so one is removed first.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	client, srcPath, err := a.resolve(ctx, storekit.OpMove, src)
	if err != nil {
		return err
	}
	_, dstPath, err := a.resolve(ctx, storekit.OpMove, dst)
	if err != nil {
		return err
	}

	if err := client.MkdirAll(path.Dir(dstPath)); err != nil {
		return mapSFTPError(storekit.OpMove, dst, err)
	}

	if err := client.Rename(srcPath, dstPath); err != nil {
		if _, serr := client.Stat(dstPath); serr != nil {
			return mapSFTPError(storekit.OpMove, src, err)
		}
		if err := client.Remove(dstPath); err != nil {
			return mapSFTPError(storekit.OpMove, dst, err)
		}
		if err := client.Rename(srcPath, dstPath); err != nil {
			return mapSFTPError(storekit.OpMove, src, err)
		}
	}
	return nil
}

// ============================================================================
// Lister
// ============================================================================

type lister struct {
	client     *sftp.Client
	basePath   string
	recursive  bool
	startAfter string

	pending []string
	dir     string
	buf     []os.FileInfo
	done    bool
}

func (l *lister) Next(ctx context.Context) (*storekit.Entry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.done {
			return nil, nil
		}

		if len(l.buf) == 0 {
			if len(l.pending) == 0 {
				l.done = true
				return nil, nil
			}
			l.dir = l.pending[len(l.pending)-1]
			l.pending = l.pending[:len(l.pending)-1]

			infos, err := l.client.ReadDir(path.Join(l.basePath, l.dir))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				l.done = true
				return nil, mapSFTPError(storekit.OpListerNext, l.dir, err)
			}
			l.buf = infos
			continue
		}

		info := l.buf[0]
		l.buf = l.buf[1:]

		key := l.dir + info.Name()
		if info.IsDir() {
			key += "/"
			if l.recursive {
				l.pending = append(l.pending, key)
			}
		}
		if l.startAfter != "" && key <= l.startAfter {
			continue
		}
		return storekit.NewEntry(key, toMetadata(info)), nil
	}
}

// ============================================================================
// Helpers
// ============================================================================

func toMetadata(info os.FileInfo) *storekit.Metadata {
	meta := &storekit.Metadata{
		LastModified: info.ModTime(),
	}
	if info.IsDir() {
		meta.Mode = storekit.ModeDir
		return meta
	}
	meta.Mode = storekit.ModeFile
	meta.ContentLength = info.Size()
	meta.ContentType = mime.TypeByExtension(path.Ext(info.Name()))
	if st, ok := info.Sys().(*sftp.FileStat); ok {
		meta.UserMetadata = map[string]string{
			"uid": strconv.FormatUint(uint64(st.UID), 10),
			"gid": strconv.FormatUint(uint64(st.GID), 10),
		}
	}
	return meta
}

// mapSFTPError maps SFTP errors to storekit errors
func mapSFTPError(op storekit.Operation, p string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return storekit.PathErr(storekit.KindNotFound, op, p, err)
	case errors.Is(err, fs.ErrExist):
		return storekit.PathErr(storekit.KindAlreadyExists, op, p, err)
	case errors.Is(err, fs.ErrPermission):
		return storekit.PathErr(storekit.KindPermissionDenied, op, p, err)
	}

	var status *sftp.StatusError
	if errors.As(err, &status) && strings.Contains(strings.ToLower(status.Error()), "no such file") {
		return storekit.PathErr(storekit.KindNotFound, op, p, err)
	}

	return storekit.PathErr(storekit.KindUnexpected, op, p, err)
}

var (
	_ storekit.Accessor = (*Adapter)(nil)
	_ storekit.CanCopy  = (*Adapter)(nil)
	_ storekit.CanMove  = (*Adapter)(nil)
	_ io.Closer         = (*Adapter)(nil)
	_ storekit.Lister   = (*lister)(nil)
)
