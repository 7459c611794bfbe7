// Package fsdb stores values as files in a directory tree on disk. Structured
// values are written as indented JSON; raw bytes and strings are written as-is.
//
// Paths given to a Storage are slash-separated and relative to its root
// directory; a path that would leave the root is rejected. Absence of a file
// is never an error: ReadFile reports it through its found result, DeleteFile
// ignores it, and ListFiles gives an empty list for a missing directory.
//
// A single write is done by writing to a temporary file and renaming it into
// place, but there is no locking and no atomicity across calls. Concurrent
// writers to the same path race, and the last rename wins.
package fsdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dekarrin/jelstore/serr"
	"github.com/google/uuid"
)

const storageType = "filesystem"

// Storage is a tree of files under a root directory. It starts out
// disconnected; Connect must be called before any other operation.
//
// The zero value is not usable; call New to create a Storage.
type Storage struct {
	base string
	name string

	mtx  sync.RWMutex
	root string
}

// New creates a new disconnected Storage kept in the directory name within
// base. base must already exist when Connect is called; name is created if
// needed.
func New(base, name string) *Storage {
	return &Storage{base: base, name: name}
}

// Connect checks that the base directory is usable and creates the storage
// root within it. Calling Connect on a connected Storage does nothing. If the
// base directory does not exist or is not a directory, a Storage-kind error
// matching serr.ErrConnection is returned.
func (st *Storage) Connect(ctx context.Context) error {
	st.mtx.Lock()
	defer st.mtx.Unlock()

	if st.root != "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return connectionError(err, st.base)
	}

	info, err := os.Stat(st.base)
	if err != nil {
		return connectionError(err, st.base)
	}
	if !info.IsDir() {
		return connectionError(fmt.Errorf("not a directory"), st.base)
	}

	root := filepath.Join(st.base, st.name)
	if err := os.MkdirAll(root, 0770); err != nil {
		return connectionError(err, root)
	}

	st.root = root
	return nil
}

// Connected returns whether Connect has succeeded.
func (st *Storage) Connected() bool {
	st.mtx.RLock()
	defer st.mtx.RUnlock()
	return st.root != ""
}

// Root returns the directory the storage is kept in. It is empty until the
// Storage is connected.
func (st *Storage) Root() string {
	st.mtx.RLock()
	defer st.mtx.RUnlock()
	return st.root
}

// resolve checks that the Storage is connected and converts p to a path on
// disk.
func (st *Storage) resolve(ctx context.Context, op, p string) (string, error) {
	root := st.Root()
	if root == "" {
		return "", opError(serr.ErrNotConnected, op, p)
	}
	if err := ctx.Err(); err != nil {
		return "", opError(err, op, p)
	}

	slashed := strings.ReplaceAll(p, `\`, "/")
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", serr.NewValidation(serr.CtxPath, p, "path must not leave the storage root").
				With(serr.CtxOperation, op)
		}
	}

	// leading slashes are relative to the root, not the filesystem
	clean := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// CreateDirectory creates the directory at p and any missing parents, and
// returns its location on disk.
func (st *Storage) CreateDirectory(ctx context.Context, p string) (string, error) {
	const op = "create directory"

	full, err := st.resolve(ctx, op, p)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(full, 0770); err != nil {
		return "", opError(err, op, p)
	}
	return full, nil
}

// WriteFile stores data at p, replacing any existing file. Missing parent
// directories are created. A []byte or string is written unchanged; any other
// value is encoded as JSON indented with two spaces.
func (st *Storage) WriteFile(ctx context.Context, p string, data any) error {
	const op = "write"

	full, err := st.resolve(ctx, op, p)
	if err != nil {
		return err
	}

	var content []byte
	switch d := data.(type) {
	case []byte:
		content = d
	case string:
		content = []byte(d)
	default:
		content, err = json.MarshalIndent(data, "", "  ")
		if err != nil {
			return opError(fmt.Errorf("encode: %w", err), op, p)
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0770); err != nil {
		return opError(err, op, p)
	}

	tmp := filepath.Join(filepath.Dir(full), ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, content, 0660); err != nil {
		os.Remove(tmp)
		return opError(err, op, p)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return opError(err, op, p)
	}

	return nil
}

// ReadFile reads the file at p into v, which must be a pointer. If v is a
// *[]byte or *string, the raw contents are stored in it; otherwise the
// contents are decoded as JSON. If there is no file at p, found is false and
// v is left alone.
func (st *Storage) ReadFile(ctx context.Context, p string, v any) (found bool, err error) {
	const op = "read"

	full, err := st.resolve(ctx, op, p)
	if err != nil {
		return false, err
	}

	content, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, opError(err, op, p)
	}

	switch target := v.(type) {
	case *[]byte:
		*target = content
	case *string:
		*target = string(content)
	default:
		if err := json.Unmarshal(content, v); err != nil {
			return false, opError(fmt.Errorf("%w: %w", serr.ErrDecodingFailure, err), op, p)
		}
	}

	return true, nil
}

// DeleteFile removes the file at p. Removing a file that does not exist is not
// an error.
func (st *Storage) DeleteFile(ctx context.Context, p string) error {
	const op = "delete"

	full, err := st.resolve(ctx, op, p)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return opError(err, op, p)
	}
	return nil
}

// ListFiles returns the names of the regular files directly within dir, in
// lexical order. Subdirectories and in-progress writes are not included. If
// dir does not exist, an empty list is returned.
func (st *Storage) ListFiles(ctx context.Context, dir string) ([]string, error) {
	const op = "list"

	full, err := st.resolve(ctx, op, dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, opError(err, op, dir)
	}

	names := []string{}
	for _, ent := range entries {
		if !ent.Type().IsRegular() || strings.HasPrefix(ent.Name(), ".tmp-") {
			continue
		}
		names = append(names, ent.Name())
	}
	sort.Strings(names)

	return names, nil
}

func opError(err error, op, p string) serr.Error {
	return serr.WrapStorage(err, storageType, op).With(serr.CtxPath, p)
}

func connectionError(err error, p string) serr.Error {
	return serr.WrapStorage(fmt.Errorf("%w: %w", serr.ErrConnection, err), storageType, "connect").
		With(serr.CtxPath, p)
}
