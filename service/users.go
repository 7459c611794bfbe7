// Package service holds the user use-cases of jelstore. Each one validates its
// input, then works through a jelstore.Repo. Queries use the repository's
// query builder when it has one and fall back to filtering the full list of
// users otherwise; both give the same results.
package service

import (
	"context"
	"strings"

	"github.com/dekarrin/jelstore"
	"github.com/dekarrin/jelstore/internal/jelsort"
	"github.com/dekarrin/jelstore/query"
	"github.com/dekarrin/jelstore/serr"
)

// AdultAge is the age at which a user is returned by FindAdults.
const AdultAge = 18

// UserService performs user operations against a repository.
type UserService struct {
	// Repo is the repository users are kept in.
	Repo jelstore.Repo

	// Queries is used for filtering when set. New sets it to Repo if Repo is
	// a jelstore.SelectableRepo.
	Queries jelstore.SelectableRepo
}

// New creates a UserService for repo. Whether queries are run by repo's
// query builder is decided here, once.
func New(repo jelstore.Repo) UserService {
	svc := UserService{Repo: repo}
	if sel, ok := repo.(jelstore.SelectableRepo); ok {
		svc.Queries = sel
	}
	return svc
}

// CreateUser validates the name and age and stores a new user with them. If
// either is invalid, nothing is stored and the returned error is an aggregate
// of one Validation error per bad field.
func (svc UserService) CreateUser(ctx context.Context, name string, age int) (jelstore.User, error) {
	u, err := jelstore.NewUser(name, age)
	if err != nil {
		return jelstore.User{}, err
	}

	return svc.Repo.Insert(ctx, u)
}

// GetUser returns the user with the given ID. If there is no such user, a
// NotFound error is returned.
func (svc UserService) GetUser(ctx context.Context, id int64) (jelstore.User, error) {
	u, err := svc.Repo.Get(ctx, id)
	if err != nil {
		return jelstore.User{}, err
	}
	if u == nil {
		return jelstore.User{}, notFound(id, "get user")
	}
	return *u, nil
}

// ListUsers returns every user, ordered by ID.
func (svc UserService) ListUsers(ctx context.Context) ([]jelstore.User, error) {
	all, err := svc.Repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return sortByID(all), nil
}

// IncrementAge adds one to the age of the user with the given ID and returns
// the updated user. If there is no such user, a NotFound error is returned.
func (svc UserService) IncrementAge(ctx context.Context, id int64) (jelstore.User, error) {
	u, err := svc.Repo.Get(ctx, id)
	if err != nil {
		return jelstore.User{}, err
	}
	if u == nil {
		return jelstore.User{}, notFound(id, "increment age")
	}

	u.Age++
	return svc.Repo.Update(ctx, *u)
}

// DeleteUser removes the user with the given ID. Deleting a user that does
// not exist is not an error.
func (svc UserService) DeleteUser(ctx context.Context, id int64) error {
	return svc.Repo.Delete(ctx, id)
}

// FindAdults returns every user whose age is at least AdultAge.
func (svc UserService) FindAdults(ctx context.Context) ([]jelstore.User, error) {
	if svc.Queries != nil {
		return svc.Queries.Select().
			Where(jelstore.FieldAge, string(query.OpGe), AdultAge).
			Execute(ctx)
	}

	all, err := svc.Repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	adults := []jelstore.User{}
	for _, u := range all {
		if u.Age >= AdultAge {
			adults = append(adults, u)
		}
	}
	return adults, nil
}

// SearchUsers returns every user whose name contains pattern, ignoring case.
func (svc UserService) SearchUsers(ctx context.Context, pattern string) ([]jelstore.User, error) {
	if svc.Queries != nil {
		return svc.Queries.Select().
			Where(jelstore.FieldName, string(query.OpIncludes), pattern).
			Execute(ctx)
	}

	all, err := svc.Repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	lowerPattern := strings.ToLower(pattern)
	matches := []jelstore.User{}
	for _, u := range all {
		if strings.Contains(strings.ToLower(u.Name), lowerPattern) {
			matches = append(matches, u)
		}
	}
	return matches, nil
}

// GetUsersPaginated returns page number page of the users ordered by ID, with
// pageSize users per page. Pages start at 1. A page past the end is empty.
func (svc UserService) GetUsersPaginated(ctx context.Context, page, pageSize int) ([]jelstore.User, error) {
	if page < 1 {
		return nil, serr.NewValidation("page", page, "page must be at least 1").With(serr.CtxOperation, "paginate users")
	}
	if pageSize < 1 {
		return nil, serr.NewValidation("pageSize", pageSize, "page size must be at least 1").With(serr.CtxOperation, "paginate users")
	}

	offset := (page - 1) * pageSize

	if svc.Queries != nil {
		return svc.Queries.Select().
			OrderBy(jelstore.FieldID, query.Asc).
			Limit(pageSize).
			Offset(offset).
			Execute(ctx)
	}

	all, err := svc.Repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	sorted := sortByID(all)
	if offset >= len(sorted) {
		return []jelstore.User{}, nil
	}
	end := offset + pageSize
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end], nil
}

func sortByID(users []jelstore.User) []jelstore.User {
	return jelsort.By(users, func(left, right jelstore.User) bool {
		return left.ID < right.ID
	})
}

func notFound(id int64, op string) serr.Error {
	return serr.NewNotFound("no user with that ID exists").
		With(serr.CtxID, id).
		With(serr.CtxOperation, op)
}
