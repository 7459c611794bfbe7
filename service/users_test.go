package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dekarrin/jelstore"
	"github.com/dekarrin/jelstore/dao/fsrepo"
	"github.com/dekarrin/jelstore/dao/kvrepo"
	"github.com/dekarrin/jelstore/serr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends gives a service over each repository type, and over the
// query-capable repository with its query path turned off.
func backends() []struct {
	name       string
	newService func(t *testing.T) UserService
} {
	return []struct {
		name       string
		newService func(t *testing.T) UserService
	}{
		{
			name: "sqlite with queries",
			newService: func(t *testing.T) UserService {
				repo, err := kvrepo.Open(context.Background(), t.TempDir(), "test.db", "users")
				require.NoError(t, err)
				t.Cleanup(func() { repo.Close() })

				svc := New(repo)
				require.NotNil(t, svc.Queries)
				return svc
			},
		},
		{
			name: "sqlite without queries",
			newService: func(t *testing.T) UserService {
				repo, err := kvrepo.Open(context.Background(), t.TempDir(), "test.db", "users")
				require.NoError(t, err)
				t.Cleanup(func() { repo.Close() })

				svc := New(repo)
				svc.Queries = nil
				return svc
			},
		},
		{
			name: "files",
			newService: func(t *testing.T) UserService {
				repo, err := fsrepo.Open(context.Background(), t.TempDir(), "jelstore", "users", nil)
				require.NoError(t, err)

				svc := New(repo)
				require.Nil(t, svc.Queries)
				return svc
			},
		},
	}
}

func names(users []jelstore.User) []string {
	out := make([]string, len(users))
	for i := range users {
		out[i] = users[i].Name
	}
	return out
}

func Test_UserService_CreateUser(t *testing.T) {
	for _, be := range backends() {
		t.Run(be.name, func(t *testing.T) {
			testCases := []struct {
				name         string
				inName       string
				inAge        int
				expectName   string
				expectErrIs  []error
				expectFields int
			}{
				{name: "valid", inName: "Alice", inAge: 30, expectName: "Alice"},
				{name: "trimmed", inName: "  Alice  ", inAge: 30, expectName: "Alice"},
				{name: "empty name", inName: "", inAge: 30, expectErrIs: []error{jelstore.ErrValidation}, expectFields: 1},
				{name: "negative age", inName: "Alice", inAge: -1, expectErrIs: []error{jelstore.ErrValidation}, expectFields: 1},
				{name: "both bad", inName: " ", inAge: -1, expectErrIs: []error{jelstore.ErrValidation, jelstore.ErrAggregate}, expectFields: 2},
			}

			for _, tc := range testCases {
				t.Run(tc.name, func(t *testing.T) {
					assert := assert.New(t)
					ctx := context.Background()
					svc := be.newService(t)

					actual, err := svc.CreateUser(ctx, tc.inName, tc.inAge)

					if tc.expectErrIs != nil {
						for _, target := range tc.expectErrIs {
							assert.ErrorIs(err, target)
						}
						var sErr serr.Error
						if assert.True(errors.As(err, &sErr)) {
							assert.Len(sErr.Errors(), tc.expectFields)
						}

						all, err := svc.Repo.GetAll(ctx)
						assert.NoError(err)
						assert.Empty(all, "invalid user was written")
						return
					}

					if !assert.NoError(err) {
						return
					}
					assert.NotZero(actual.ID)
					assert.Equal(tc.expectName, actual.Name)
					assert.Equal(tc.inAge, actual.Age)

					stored, err := svc.GetUser(ctx, actual.ID)
					assert.NoError(err)
					assert.Equal(actual, stored)
				})
			}
		})
	}
}

func Test_UserService_IncrementAge(t *testing.T) {
	for _, be := range backends() {
		t.Run(be.name, func(t *testing.T) {
			t.Run("existing user", func(t *testing.T) {
				assert := assert.New(t)
				ctx := context.Background()
				svc := be.newService(t)

				created, err := svc.CreateUser(ctx, "Jade", 13)
				require.NoError(t, err)

				updated, err := svc.IncrementAge(ctx, created.ID)
				if !assert.NoError(err) {
					return
				}
				assert.Equal(14, updated.Age)

				stored, err := svc.GetUser(ctx, created.ID)
				assert.NoError(err)
				assert.Equal(14, stored.Age)
			})

			t.Run("absent user is not found", func(t *testing.T) {
				assert := assert.New(t)
				svc := be.newService(t)

				_, err := svc.IncrementAge(context.Background(), 9999)

				assert.ErrorIs(err, jelstore.ErrNotFound)
				assert.NotErrorIs(err, jelstore.ErrStorage)
				assert.Equal(serr.KindNotFound, serr.KindOf(err))
			})
		})
	}
}

func Test_UserService_DeleteUser(t *testing.T) {
	for _, be := range backends() {
		t.Run(be.name, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()
			svc := be.newService(t)

			created, err := svc.CreateUser(ctx, "John", 13)
			require.NoError(t, err)

			assert.NoError(svc.DeleteUser(ctx, created.ID))
			assert.NoError(svc.DeleteUser(ctx, created.ID))

			_, err = svc.GetUser(ctx, created.ID)
			assert.ErrorIs(err, jelstore.ErrNotFound)
		})
	}
}

func Test_UserService_FindAdults(t *testing.T) {
	for _, be := range backends() {
		t.Run(be.name, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()
			svc := be.newService(t)

			_, err := svc.CreateUser(ctx, "Alice", 30)
			require.NoError(t, err)
			_, err = svc.CreateUser(ctx, "Bob", 15)
			require.NoError(t, err)

			adults, err := svc.FindAdults(ctx)
			if !assert.NoError(err) {
				return
			}

			if assert.Len(adults, 1) {
				assert.Equal("Alice", adults[0].Name)
				assert.Equal(30, adults[0].Age)
			}
		})
	}
}

func Test_UserService_FindAdults_boundary(t *testing.T) {
	for _, be := range backends() {
		t.Run(be.name, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()
			svc := be.newService(t)

			for _, u := range []struct {
				name string
				age  int
			}{{"Bob", 17}, {"Ann", 30}, {"Cid", 18}} {
				_, err := svc.CreateUser(ctx, u.name, u.age)
				require.NoError(t, err)
			}

			adults, err := svc.FindAdults(ctx)
			assert.NoError(err)
			assert.ElementsMatch([]string{"Ann", "Cid"}, names(adults))
		})
	}
}

func Test_UserService_SearchUsers(t *testing.T) {
	for _, be := range backends() {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			svc := be.newService(t)

			for _, n := range []string{"Dave Strider", "Rose Lalonde", "Dirk Strider", "Roxy Lalonde"} {
				_, err := svc.CreateUser(ctx, n, 16)
				require.NoError(t, err)
			}

			testCases := []struct {
				name    string
				pattern string
				expect  []string
			}{
				{name: "case-insensitive", pattern: "strider", expect: []string{"Dave Strider", "Dirk Strider"}},
				{name: "partial", pattern: "ro", expect: []string{"Rose Lalonde", "Roxy Lalonde"}},
				{name: "no match", pattern: "egbert", expect: []string{}},
				{name: "empty matches all", pattern: "", expect: []string{"Dave Strider", "Rose Lalonde", "Dirk Strider", "Roxy Lalonde"}},
			}

			for _, tc := range testCases {
				t.Run(tc.name, func(t *testing.T) {
					assert := assert.New(t)

					actual, err := svc.SearchUsers(ctx, tc.pattern)

					assert.NoError(err)
					assert.ElementsMatch(tc.expect, names(actual))
				})
			}
		})
	}
}

func Test_UserService_GetUsersPaginated(t *testing.T) {
	for _, be := range backends() {
		t.Run(be.name, func(t *testing.T) {
			ctx := context.Background()
			svc := be.newService(t)

			for _, n := range []string{"Aradia", "Tavros", "Sollux", "Karkat", "Nepeta"} {
				_, err := svc.CreateUser(ctx, n, 6)
				require.NoError(t, err)
			}

			testCases := []struct {
				name        string
				page        int
				size        int
				expect      []string
				expectErrIs error
			}{
				{name: "first page", page: 1, size: 2, expect: []string{"Aradia", "Tavros"}},
				{name: "second page", page: 2, size: 2, expect: []string{"Sollux", "Karkat"}},
				{name: "partial last page", page: 3, size: 2, expect: []string{"Nepeta"}},
				{name: "past the end", page: 4, size: 2, expect: []string{}},
				{name: "one big page", page: 1, size: 10, expect: []string{"Aradia", "Tavros", "Sollux", "Karkat", "Nepeta"}},
				{name: "page zero", page: 0, size: 2, expectErrIs: jelstore.ErrValidation},
				{name: "size zero", page: 1, size: 0, expectErrIs: jelstore.ErrValidation},
			}

			for _, tc := range testCases {
				t.Run(tc.name, func(t *testing.T) {
					assert := assert.New(t)

					actual, err := svc.GetUsersPaginated(ctx, tc.page, tc.size)

					if tc.expectErrIs != nil {
						assert.ErrorIs(err, tc.expectErrIs)
						return
					}
					assert.NoError(err)
					assert.Equal(tc.expect, names(actual))
				})
			}
		})
	}
}

// failingRepo is a repo whose every operation fails.
type failingRepo struct {
	err error
}

func (r failingRepo) Insert(ctx context.Context, u jelstore.User) (jelstore.User, error) {
	return jelstore.User{}, r.err
}
func (r failingRepo) GetAll(ctx context.Context) ([]jelstore.User, error) { return nil, r.err }
func (r failingRepo) Get(ctx context.Context, id int64) (*jelstore.User, error) {
	return nil, r.err
}
func (r failingRepo) Update(ctx context.Context, u jelstore.User) (jelstore.User, error) {
	return jelstore.User{}, r.err
}
func (r failingRepo) Delete(ctx context.Context, id int64) error { return r.err }

func Test_UserService_storageFailures(t *testing.T) {
	repoErr := serr.WrapStorage(errors.New("disk on fire"), "filesystem", "repository getAll")
	svc := New(failingRepo{err: repoErr})

	testCases := []struct {
		name string
		call func(ctx context.Context) error
	}{
		{name: "create", call: func(ctx context.Context) error {
			_, err := svc.CreateUser(ctx, "Eridan", 9)
			return err
		}},
		{name: "increment", call: func(ctx context.Context) error {
			_, err := svc.IncrementAge(ctx, 1)
			return err
		}},
		{name: "adults", call: func(ctx context.Context) error {
			_, err := svc.FindAdults(ctx)
			return err
		}},
		{name: "search", call: func(ctx context.Context) error {
			_, err := svc.SearchUsers(ctx, "x")
			return err
		}},
		{name: "paginate", call: func(ctx context.Context) error {
			_, err := svc.GetUsersPaginated(ctx, 1, 1)
			return err
		}},
		{name: "list", call: func(ctx context.Context) error {
			_, err := svc.ListUsers(ctx)
			return err
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			err := tc.call(context.Background())

			assert.ErrorIs(err, jelstore.ErrStorage)
			assert.NotErrorIs(err, jelstore.ErrNotFound)
		})
	}
}
