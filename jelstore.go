// Package jelstore stores user records behind a single repository contract
// that is backed by either a transactional key-value database or a tree of
// JSON files. Records are queried in memory with the query package and are
// operated on through the use-cases in the service package.
//
// The storage adapters live under storage/ and the repositories built on them
// live under dao/. Callers should depend only on Repo (and SelectableRepo when
// they want to build queries), never on a concrete backend.
package jelstore

import (
	"context"

	"github.com/dekarrin/jelstore/query"
)

// Repo is a repository of User records. It is implemented once per storage
// backend. All methods take a context as their first argument; backends that
// cannot be interrupted only check it before starting work.
type Repo interface {
	// Insert stores the given user. If its ID is 0, the backend assigns one.
	// The stored user, including any assigned ID, is returned. Users that do
	// not pass User.Validate are rejected before anything is written.
	Insert(ctx context.Context, u User) (User, error)

	// GetAll returns every stored user in an order decided by the backend.
	// An empty store gives an empty slice and no error.
	GetAll(ctx context.Context) ([]User, error)

	// Get returns the user with the given ID. If no such user exists, Get
	// returns nil and no error.
	Get(ctx context.Context, id int64) (*User, error)

	// Update writes u over the stored user with the same ID, creating it if it
	// does not yet exist. u.ID must be set.
	Update(ctx context.Context, u User) (User, error)

	// Delete removes the user with the given ID. Deleting an ID that does not
	// exist is not an error.
	Delete(ctx context.Context, id int64) error
}

// SelectableRepo is a Repo that can also build queries over its contents.
type SelectableRepo interface {
	Repo

	// Select returns a new query builder that scans the repo when executed.
	Select() *query.Builder[User]
}
