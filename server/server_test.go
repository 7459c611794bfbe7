package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dekarrin/jelstore"
	"github.com/dekarrin/jelstore/dao/kvrepo"
	"github.com/dekarrin/jelstore/serr"
	"github.com/dekarrin/jelstore/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer returns a Server over a fresh SQLite repository holding the
// given users, created in order.
func newTestServer(t *testing.T, users ...jelstore.User) *Server {
	repo, err := kvrepo.Open(context.Background(), t.TempDir(), "test.db", "users")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	for _, u := range users {
		_, err := repo.Insert(context.Background(), u)
		require.NoError(t, err)
	}

	return New(service.New(repo), nil)
}

func do(t *testing.T, h http.Handler, method, target, body string) *http.Response {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, bodyReader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func decodeBody[E any](t *testing.T, resp *http.Response) E {
	var v E
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &v), "body: %s", string(data))
	return v
}

var (
	userAlice = jelstore.User{Name: "Alice", Age: 30}
	userBob   = jelstore.User{Name: "Bob", Age: 15}
	userCarol = jelstore.User{Name: "Carol", Age: 18}
)

func Test_Server_listAndGet(t *testing.T) {
	testCases := []struct {
		name         string
		target       string
		expectStatus int
		expectNames  []string
	}{
		{name: "list all", target: "/users", expectStatus: http.StatusOK, expectNames: []string{"Alice", "Bob", "Carol"}},
		{name: "first page", target: "/users?page=1&size=2", expectStatus: http.StatusOK, expectNames: []string{"Alice", "Bob"}},
		{name: "second page", target: "/users?page=2&size=2", expectStatus: http.StatusOK, expectNames: []string{"Carol"}},
		{name: "adults", target: "/users/adults", expectStatus: http.StatusOK, expectNames: []string{"Alice", "Carol"}},
		{name: "search", target: "/users/search?q=AL", expectStatus: http.StatusOK, expectNames: []string{"Alice"}},
		{name: "search no match", target: "/users/search?q=zzz", expectStatus: http.StatusOK, expectNames: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			srv := newTestServer(t, userAlice, userBob, userCarol)

			resp := do(t, srv.Handler(), http.MethodGet, tc.target, "")

			assert.Equal(tc.expectStatus, resp.StatusCode)
			assert.Equal("application/json", resp.Header.Get("Content-Type"))
			assert.NotEmpty(resp.Header.Get(RequestIDHeader))

			users := decodeBody[[]jelstore.User](t, resp)
			actualNames := []string{}
			for _, u := range users {
				actualNames = append(actualNames, u.Name)
			}
			assert.ElementsMatch(tc.expectNames, actualNames)
		})
	}
}

func Test_Server_errors(t *testing.T) {
	testCases := []struct {
		name         string
		method       string
		target       string
		body         string
		expectStatus int
	}{
		{name: "get missing user", method: http.MethodGet, target: "/users/9999", expectStatus: http.StatusNotFound},
		{name: "birthday of missing user", method: http.MethodPost, target: "/users/9999/birthday", expectStatus: http.StatusNotFound},
		{name: "get id zero", method: http.MethodGet, target: "/users/0", expectStatus: http.StatusBadRequest},
		{name: "non-numeric id", method: http.MethodGet, target: "/users/abc", expectStatus: http.StatusNotFound},
		{name: "bad page", method: http.MethodGet, target: "/users?page=0&size=2", expectStatus: http.StatusBadRequest},
		{name: "non-integer size", method: http.MethodGet, target: "/users?page=1&size=x", expectStatus: http.StatusBadRequest},
		{name: "create with empty name", method: http.MethodPost, target: "/users", body: `{"name": "", "age": 3}`, expectStatus: http.StatusBadRequest},
		{name: "create with negative age", method: http.MethodPost, target: "/users", body: `{"name": "Dave", "age": -3}`, expectStatus: http.StatusBadRequest},
		{name: "create without age", method: http.MethodPost, target: "/users", body: `{"name": "Dave"}`, expectStatus: http.StatusBadRequest},
		{name: "create with malformed JSON", method: http.MethodPost, target: "/users", body: `{"name": `, expectStatus: http.StatusBadRequest},
		{name: "unknown route", method: http.MethodGet, target: "/things", expectStatus: http.StatusNotFound},
		{name: "wrong method", method: http.MethodPut, target: "/users", expectStatus: http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			srv := newTestServer(t)

			resp := do(t, srv.Handler(), tc.method, tc.target, tc.body)

			assert.Equal(tc.expectStatus, resp.StatusCode)
			errResp := decodeBody[ErrorResponse](t, resp)
			assert.Equal(tc.expectStatus, errResp.Status)
			assert.NotEmpty(errResp.Error)
		})
	}
}

func Test_Server_createBirthdayDelete(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)
	h := srv.Handler()

	resp := do(t, h, http.MethodPost, "/users", `{"name": "  Jade Harley ", "age": 13}`)
	if !assert.Equal(http.StatusCreated, resp.StatusCode) {
		return
	}
	created := decodeBody[jelstore.User](t, resp)
	assert.Equal("Jade Harley", created.Name)
	assert.NotZero(created.ID)

	userURI := "/users/" + jsonNumber(created.ID)

	resp = do(t, h, http.MethodPost, userURI+"/birthday", "")
	if !assert.Equal(http.StatusOK, resp.StatusCode) {
		return
	}
	assert.Equal(14, decodeBody[jelstore.User](t, resp).Age)

	resp = do(t, h, http.MethodGet, userURI, "")
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(14, decodeBody[jelstore.User](t, resp).Age)

	resp = do(t, h, http.MethodDelete, userURI, "")
	assert.Equal(http.StatusNoContent, resp.StatusCode)

	resp = do(t, h, http.MethodGet, userURI, "")
	assert.Equal(http.StatusNotFound, resp.StatusCode)
}

func jsonNumber(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}

func Test_ErrorResult(t *testing.T) {
	testCases := []struct {
		name         string
		err          error
		expectStatus int
	}{
		{name: "validation", err: serr.NewValidation("age", -1, "age must not be negative"), expectStatus: http.StatusBadRequest},
		{name: "aggregate of validation", err: serr.NewAggregate("", serr.NewValidation("name", "", "name must not be empty")), expectStatus: http.StatusBadRequest},
		{name: "not found", err: serr.NewNotFound("no user with that ID exists"), expectStatus: http.StatusNotFound},
		{name: "storage", err: serr.WrapStorage(errors.New("disk full"), "sqlite", "repository insert"), expectStatus: http.StatusInternalServerError},
		{name: "plain error", err: errors.New("what"), expectStatus: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			actual := ErrorResult(tc.err)

			assert.True(actual.IsErr)
			assert.Equal(tc.expectStatus, actual.Status)
			if errResp, ok := actual.Resp.(ErrorResponse); assert.True(ok) {
				assert.Equal(tc.expectStatus, errResp.Status)
				if tc.expectStatus == http.StatusInternalServerError {
					assert.NotContains(errResp.Error, "disk full")
				}
			}
		})
	}
}

func Test_Server_panicIsInternalError(t *testing.T) {
	assert := assert.New(t)
	srv := New(service.UserService{}, nil)

	// nil repo panics on use
	resp := do(t, srv.Handler(), http.MethodGet, "/users", "")

	assert.Equal(http.StatusInternalServerError, resp.StatusCode)
}

func Test_Server_RoutesIndex(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)

	idx := srv.RoutesIndex()

	assert.Contains(idx, "* /users/ - GET, POST")
	assert.Contains(idx, "* /users/adults - GET")
	assert.Contains(idx, "/birthday - POST")
}

func Test_Server_Shutdown_notRunning(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)

	err := srv.Shutdown(context.Background())

	assert.Error(err)
}
