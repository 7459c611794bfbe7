// Package fsrepo is a repository of users kept as one JSON file per user in an
// fsdb file tree. User IDs are derived from the time of insertion.
//
// Writes to the same user from more than one goroutine or process are not
// coordinated; the last write wins.
package fsrepo

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dekarrin/jelstore"
	"github.com/dekarrin/jelstore/serr"
	"github.com/dekarrin/jelstore/storage/fsdb"
)

const (
	storageType = "filesystem"
	fileExt     = ".json"
)

var _ jelstore.Repo = (*UsersFiles)(nil)

// UsersFiles is a jelstore.Repo backed by the files in one directory of an
// fsdb.Storage.
type UsersFiles struct {
	Storage *fsdb.Storage

	// Dir is the directory within Storage that user files are kept in.
	Dir string

	// Log receives warnings about files skipped by GetAll. If nil, nothing is
	// logged.
	Log jelstore.Logger

	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time

	mtx    sync.Mutex
	lastID int64
}

// Open connects to the file tree rooted at the directory name within base and
// returns a repository that keeps users in its dir subdirectory.
func Open(ctx context.Context, base, name, dir string, log jelstore.Logger) (*UsersFiles, error) {
	st := fsdb.New(base, name)
	if err := st.Connect(ctx); err != nil {
		return nil, err
	}
	if _, err := st.CreateDirectory(ctx, dir); err != nil {
		return nil, err
	}

	repo := &UsersFiles{Storage: st, Dir: dir, Log: log}

	// new IDs must be above every existing one, even if the clock went back
	names, err := st.ListFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, fileExt), 10, 64)
		if err == nil && id > repo.lastID {
			repo.lastID = id
		}
	}

	return repo, nil
}

func (repo *UsersFiles) filePath(id int64) string {
	return path.Join(repo.Dir, strconv.FormatInt(id, 10)+fileExt)
}

// nextID returns the current time in milliseconds, moved forward if needed so
// that no two IDs given out by repo are the same.
func (repo *UsersFiles) nextID() int64 {
	now := time.Now
	if repo.Now != nil {
		now = repo.Now
	}

	repo.mtx.Lock()
	defer repo.mtx.Unlock()

	id := now().UnixMilli()
	if id <= repo.lastID {
		id = repo.lastID + 1
	}
	repo.lastID = id
	return id
}

// reserveID records id as given out so that nextID never returns it.
func (repo *UsersFiles) reserveID(id int64) {
	repo.mtx.Lock()
	defer repo.mtx.Unlock()

	if id > repo.lastID {
		repo.lastID = id
	}
}

// Insert stores u. If u.ID is 0, a new ID is assigned; otherwise there must
// not already be a user with that ID.
func (repo *UsersFiles) Insert(ctx context.Context, u jelstore.User) (jelstore.User, error) {
	const op = "insert"

	if err := u.Validate(); err != nil {
		return jelstore.User{}, err
	}

	if u.ID == 0 {
		u.ID = repo.nextID()
	} else {
		repo.reserveID(u.ID)

		var existing []byte
		found, err := repo.Storage.ReadFile(ctx, repo.filePath(u.ID), &existing)
		if err != nil {
			return jelstore.User{}, repoError(err, op).With(serr.CtxID, u.ID)
		}
		if found {
			return jelstore.User{}, repoError(serr.ErrConstraintViolation, op).With(serr.CtxID, u.ID)
		}
	}

	if err := repo.Storage.WriteFile(ctx, repo.filePath(u.ID), u); err != nil {
		return jelstore.User{}, repoError(err, op).With(serr.CtxID, u.ID)
	}

	return u, nil
}

// ScanAll reads every user file. Files that cannot be read or decoded are
// skipped; skipped is an aggregate of the reasons, or nil if nothing was
// skipped. err is only set if the directory itself could not be listed or ctx
// ended during the scan.
func (repo *UsersFiles) ScanAll(ctx context.Context) (users []jelstore.User, skipped error, err error) {
	const op = "getAll"

	names, err := repo.Storage.ListFiles(ctx, repo.Dir)
	if err != nil {
		return nil, nil, repoError(err, op)
	}

	users = []jelstore.User{}
	var skips []error
	for _, name := range names {
		if !strings.HasSuffix(name, fileExt) {
			continue
		}

		p := path.Join(repo.Dir, name)

		var u jelstore.User
		found, readErr := repo.Storage.ReadFile(ctx, p, &u)
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, repoError(ctxErr, op)
			}
			skips = append(skips, readErr)
			continue
		}
		if !found {
			// removed between listing and reading
			continue
		}

		users = append(users, u)
	}

	if len(skips) > 0 {
		skipped = serr.NewAggregate(fmt.Sprintf("skipped %d unreadable user file(s)", len(skips)), skips...).
			With(serr.CtxOperation, op).
			With(serr.CtxPath, repo.Dir)
	}

	return users, skipped, nil
}

// GetAll returns every user that could be read. Unreadable files are logged
// and skipped rather than failing the whole call.
func (repo *UsersFiles) GetAll(ctx context.Context) ([]jelstore.User, error) {
	users, skipped, err := repo.ScanAll(ctx)
	if err != nil {
		return nil, err
	}

	if skipped != nil && repo.Log != nil {
		var agg serr.Error
		if errors.As(skipped, &agg) {
			for _, e := range agg.Errors() {
				repo.Log.Warnf("skipping user file: %v", e)
			}
		}
	}

	return users, nil
}

func (repo *UsersFiles) Get(ctx context.Context, id int64) (*jelstore.User, error) {
	const op = "get"

	if id < 1 {
		return nil, serr.NewValidation(jelstore.FieldID, id, "id must be positive").With(serr.CtxOperation, op)
	}

	var u jelstore.User
	found, err := repo.Storage.ReadFile(ctx, repo.filePath(id), &u)
	if err != nil {
		return nil, repoError(err, op).With(serr.CtxID, id)
	}
	if !found {
		return nil, nil
	}

	return &u, nil
}

func (repo *UsersFiles) Update(ctx context.Context, u jelstore.User) (jelstore.User, error) {
	const op = "update"

	if u.ID < 1 {
		return jelstore.User{}, serr.NewValidation(jelstore.FieldID, u.ID, "id must be set").With(serr.CtxOperation, op)
	}
	if err := u.Validate(); err != nil {
		return jelstore.User{}, err
	}

	if err := repo.Storage.WriteFile(ctx, repo.filePath(u.ID), u); err != nil {
		return jelstore.User{}, repoError(err, op).With(serr.CtxID, u.ID)
	}

	return u, nil
}

func (repo *UsersFiles) Delete(ctx context.Context, id int64) error {
	const op = "delete"

	if id < 1 {
		return serr.NewValidation(jelstore.FieldID, id, "id must be positive").With(serr.CtxOperation, op)
	}

	if err := repo.Storage.DeleteFile(ctx, repo.filePath(id)); err != nil {
		return repoError(err, op).With(serr.CtxID, id)
	}

	return nil
}

// repoError wraps an error from the file tree with the name of the repository
// operation. Validation errors pass through unchanged.
func repoError(err error, op string) serr.Error {
	var sErr serr.Error
	if errors.As(err, &sErr) && sErr.Kind() == serr.KindValidation {
		return sErr
	}
	return serr.WrapStorage(err, storageType, "repository "+op)
}
