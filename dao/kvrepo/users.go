// Package kvrepo is a repository of users kept in a kvdb key-value store.
// User IDs are the store's auto-incrementing keys. The repository can build
// queries over its contents.
package kvrepo

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/dekarrin/jelstore"
	"github.com/dekarrin/jelstore/query"
	"github.com/dekarrin/jelstore/serr"
	"github.com/dekarrin/jelstore/storage/kvdb"
)

const (
	storageType   = "sqlite"
	schemaVersion = 1
)

var _ jelstore.SelectableRepo = (*UsersDB)(nil)

// UsersDB is a jelstore.SelectableRepo backed by one store of a kvdb.DB.
type UsersDB struct {
	DB    *kvdb.DB
	Store string
}

// Upgrade returns a kvdb.UpgradeFunc that creates the named user store if it
// is not already present.
func Upgrade(storeName string) kvdb.UpgradeFunc {
	return func(ctx context.Context, up *kvdb.Upgrader, oldVersion int) error {
		has, err := up.HasStore(ctx, storeName)
		if err != nil {
			return err
		}
		if has {
			return nil
		}
		return up.CreateStore(ctx, storeName)
	}
}

// Open connects to the database file named fileName in dir, creating it and
// the user store if needed, and returns a repository ready for use.
func Open(ctx context.Context, dir, fileName, storeName string) (*UsersDB, error) {
	db := kvdb.New(filepath.Join(dir, fileName), schemaVersion, Upgrade(storeName))
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	return &UsersDB{DB: db, Store: storeName}, nil
}

// Close closes the underlying database. The repository cannot be used
// afterwards.
func (repo *UsersDB) Close() error {
	return repo.DB.Close()
}

// Select returns a query builder over every user in the repository.
func (repo *UsersDB) Select() *query.Builder[jelstore.User] {
	return query.New[jelstore.User](repo)
}

func (repo *UsersDB) Insert(ctx context.Context, u jelstore.User) (jelstore.User, error) {
	const op = "insert"

	if err := u.Validate(); err != nil {
		return jelstore.User{}, err
	}

	err := repo.DB.Exec(ctx, repo.Store, kvdb.ReadWrite, func(s *kvdb.Store) error {
		key, err := s.Add(ctx, u.ID, u)
		if err != nil {
			return err
		}
		if key != u.ID {
			// store the assigned key as part of the record
			u.ID = key
			return s.Put(ctx, key, u)
		}
		return nil
	})
	if err != nil {
		return jelstore.User{}, repoError(err, op, repo.Store)
	}

	return u, nil
}

func (repo *UsersDB) GetAll(ctx context.Context) ([]jelstore.User, error) {
	const op = "getAll"

	var all []jelstore.User
	err := repo.DB.Exec(ctx, repo.Store, kvdb.ReadOnly, func(s *kvdb.Store) error {
		var err error
		all, err = kvdb.GetAll[jelstore.User](ctx, s)
		return err
	})
	if err != nil {
		return nil, repoError(err, op, repo.Store)
	}

	return all, nil
}

func (repo *UsersDB) Get(ctx context.Context, id int64) (*jelstore.User, error) {
	const op = "get"

	if id < 1 {
		return nil, serr.NewValidation(jelstore.FieldID, id, "id must be positive").With(serr.CtxOperation, op)
	}

	var u jelstore.User
	var found bool
	err := repo.DB.Exec(ctx, repo.Store, kvdb.ReadOnly, func(s *kvdb.Store) error {
		var err error
		found, err = s.Get(ctx, id, &u)
		return err
	})
	if err != nil {
		return nil, repoError(err, op, repo.Store).With(serr.CtxID, id)
	}
	if !found {
		return nil, nil
	}

	return &u, nil
}

func (repo *UsersDB) Update(ctx context.Context, u jelstore.User) (jelstore.User, error) {
	const op = "update"

	if u.ID < 1 {
		return jelstore.User{}, serr.NewValidation(jelstore.FieldID, u.ID, "id must be set").With(serr.CtxOperation, op)
	}
	if err := u.Validate(); err != nil {
		return jelstore.User{}, err
	}

	err := repo.DB.Exec(ctx, repo.Store, kvdb.ReadWrite, func(s *kvdb.Store) error {
		return s.Put(ctx, u.ID, u)
	})
	if err != nil {
		return jelstore.User{}, repoError(err, op, repo.Store).With(serr.CtxID, u.ID)
	}

	return u, nil
}

func (repo *UsersDB) Delete(ctx context.Context, id int64) error {
	const op = "delete"

	if id < 1 {
		return serr.NewValidation(jelstore.FieldID, id, "id must be positive").With(serr.CtxOperation, op)
	}

	err := repo.DB.Exec(ctx, repo.Store, kvdb.ReadWrite, func(s *kvdb.Store) error {
		return s.Delete(ctx, id)
	})
	if err != nil {
		return repoError(err, op, repo.Store).With(serr.CtxID, id)
	}

	return nil
}

// repoError wraps an error from the store with the name of the repository
// operation. Validation errors pass through unchanged.
func repoError(err error, op, storeName string) serr.Error {
	var sErr serr.Error
	if errors.As(err, &sErr) && sErr.Kind() == serr.KindValidation {
		return sErr
	}
	return serr.WrapStorage(err, storageType, "repository "+op).With(serr.CtxStoreName, storeName)
}
