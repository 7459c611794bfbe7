// Package daotest holds tests that every jelstore.Repo implementation must
// pass. Repository packages call RepoContract from their own tests with a
// function that creates a fresh, empty, connected repository.
package daotest

import (
	"context"
	"testing"

	"github.com/dekarrin/jelstore"
	"github.com/stretchr/testify/assert"
)

var (
	User_Dave = jelstore.User{Name: "Dave Strider", Age: 13}
	User_Rose = jelstore.User{Name: "Rose Lalonde", Age: 13}
	User_Bro  = jelstore.User{Name: "Bro Strider", Age: 30}
	User_Mom  = jelstore.User{Name: "Mom Lalonde", Age: 41}
)

// RepoContract runs the shared repository tests against repos created by
// newRepo.
func RepoContract(t *testing.T, newRepo func(t *testing.T) jelstore.Repo) {
	t.Run("insert assigns id and get returns it", func(t *testing.T) {
		assert := assert.New(t)
		ctx := context.Background()
		repo := newRepo(t)

		inserted, err := repo.Insert(ctx, User_Dave)
		if !assert.NoError(err) {
			return
		}
		assert.NotZero(inserted.ID)
		assert.Equal(User_Dave.Name, inserted.Name)
		assert.Equal(User_Dave.Age, inserted.Age)

		actual, err := repo.Get(ctx, inserted.ID)
		if !assert.NoError(err) {
			return
		}
		if assert.NotNil(actual) {
			assert.Equal(inserted, *actual)
		}
	})

	t.Run("insert gives distinct ids", func(t *testing.T) {
		assert := assert.New(t)
		ctx := context.Background()
		repo := newRepo(t)

		seen := map[int64]bool{}
		for _, u := range []jelstore.User{User_Dave, User_Rose, User_Bro, User_Mom} {
			inserted, err := repo.Insert(ctx, u)
			if !assert.NoError(err) {
				return
			}
			assert.False(seen[inserted.ID], "id %d given out twice", inserted.ID)
			seen[inserted.ID] = true
		}

		all, err := repo.GetAll(ctx)
		assert.NoError(err)
		assert.Len(all, 4)
	})

	t.Run("invalid insert writes nothing", func(t *testing.T) {
		testCases := []struct {
			name  string
			input jelstore.User
		}{
			{name: "empty name", input: jelstore.User{Name: "", Age: 3}},
			{name: "negative age", input: jelstore.User{Name: "Jade", Age: -1}},
			{name: "untrimmed name", input: jelstore.User{Name: " Jade ", Age: 3}},
			{name: "negative id", input: jelstore.User{ID: -5, Name: "Jade", Age: 3}},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				assert := assert.New(t)
				ctx := context.Background()
				repo := newRepo(t)

				_, err := repo.Insert(ctx, tc.input)
				assert.ErrorIs(err, jelstore.ErrValidation)

				all, err := repo.GetAll(ctx)
				assert.NoError(err)
				assert.Empty(all)
			})
		}
	})

	t.Run("get absent is nil without error", func(t *testing.T) {
		assert := assert.New(t)
		repo := newRepo(t)

		actual, err := repo.Get(context.Background(), 9999)

		assert.NoError(err)
		assert.Nil(actual)
	})

	t.Run("get with bad id", func(t *testing.T) {
		assert := assert.New(t)
		repo := newRepo(t)

		_, err := repo.Get(context.Background(), 0)

		assert.ErrorIs(err, jelstore.ErrValidation)
	})

	t.Run("getAll on empty repo", func(t *testing.T) {
		assert := assert.New(t)
		repo := newRepo(t)

		all, err := repo.GetAll(context.Background())

		assert.NoError(err)
		assert.NotNil(all)
		assert.Empty(all)
	})

	t.Run("update overwrites", func(t *testing.T) {
		assert := assert.New(t)
		ctx := context.Background()
		repo := newRepo(t)

		inserted, err := repo.Insert(ctx, User_Rose)
		if !assert.NoError(err) {
			return
		}

		inserted.Age++
		updated, err := repo.Update(ctx, inserted)
		if !assert.NoError(err) {
			return
		}
		assert.Equal(inserted, updated)

		actual, err := repo.Get(ctx, inserted.ID)
		if !assert.NoError(err) || !assert.NotNil(actual) {
			return
		}
		assert.Equal(14, actual.Age)

		all, err := repo.GetAll(ctx)
		assert.NoError(err)
		assert.Len(all, 1)
	})

	t.Run("update of absent id creates it", func(t *testing.T) {
		assert := assert.New(t)
		ctx := context.Background()
		repo := newRepo(t)

		u := User_Bro
		u.ID = 413
		_, err := repo.Update(ctx, u)
		if !assert.NoError(err) {
			return
		}

		actual, err := repo.Get(ctx, 413)
		assert.NoError(err)
		if assert.NotNil(actual) {
			assert.Equal(u, *actual)
		}
	})

	t.Run("update requires id", func(t *testing.T) {
		assert := assert.New(t)
		repo := newRepo(t)

		_, err := repo.Update(context.Background(), User_Mom)

		assert.ErrorIs(err, jelstore.ErrValidation)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		assert := assert.New(t)
		ctx := context.Background()
		repo := newRepo(t)

		inserted, err := repo.Insert(ctx, User_Mom)
		if !assert.NoError(err) {
			return
		}

		assert.NoError(repo.Delete(ctx, inserted.ID))
		assert.NoError(repo.Delete(ctx, inserted.ID))

		actual, err := repo.Get(ctx, inserted.ID)
		assert.NoError(err)
		assert.Nil(actual)
	})

	t.Run("delete with bad id", func(t *testing.T) {
		assert := assert.New(t)
		repo := newRepo(t)

		err := repo.Delete(context.Background(), -1)

		assert.ErrorIs(err, jelstore.ErrValidation)
	})
}
