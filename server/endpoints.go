package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// CreateUserRequest is the body of a request to create a user.
type CreateUserRequest struct {
	Name string `json:"name"`
	Age  *int   `json:"age"`
}

func (s *Server) epListUsers(req *http.Request) Result {
	q := req.URL.Query()
	if q.Has("page") || q.Has("size") {
		page, err := queryInt(req, "page", 1)
		if err != nil {
			return BadRequest(err.Error(), "%v", err)
		}
		size, err := queryInt(req, "size", 10)
		if err != nil {
			return BadRequest(err.Error(), "%v", err)
		}

		users, err := s.svc.GetUsersPaginated(req.Context(), page, size)
		if err != nil {
			return ErrorResult(err)
		}
		return OK(users, "got page %d (size %d) of users: %d returned", page, size, len(users))
	}

	users, err := s.svc.ListUsers(req.Context())
	if err != nil {
		return ErrorResult(err)
	}
	return OK(users, "listed %d users", len(users))
}

func (s *Server) epCreateUser(req *http.Request) Result {
	var body CreateUserRequest
	if err := parseJSONRequest(req, &body); err != nil {
		return BadRequest(err.Error(), "%v", err)
	}
	if body.Age == nil {
		return BadRequest("age: property is missing", "age not given")
	}

	u, err := s.svc.CreateUser(req.Context(), body.Name, *body.Age)
	if err != nil {
		return ErrorResult(err)
	}
	return Created(u, "user %d created", u.ID)
}

func (s *Server) epGetUser(req *http.Request) Result {
	id, err := requireIDParam(req)
	if err != nil {
		return BadRequest(err.Error(), "%v", err)
	}

	u, err := s.svc.GetUser(req.Context(), id)
	if err != nil {
		return ErrorResult(err)
	}
	return OK(u, "got user %d", id)
}

func (s *Server) epIncrementAge(req *http.Request) Result {
	id, err := requireIDParam(req)
	if err != nil {
		return BadRequest(err.Error(), "%v", err)
	}

	u, err := s.svc.IncrementAge(req.Context(), id)
	if err != nil {
		return ErrorResult(err)
	}
	return OK(u, "user %d is now %d", id, u.Age)
}

func (s *Server) epDeleteUser(req *http.Request) Result {
	id, err := requireIDParam(req)
	if err != nil {
		return BadRequest(err.Error(), "%v", err)
	}

	if err := s.svc.DeleteUser(req.Context(), id); err != nil {
		return ErrorResult(err)
	}
	return NoContent("user %d deleted", id)
}

func (s *Server) epFindAdults(req *http.Request) Result {
	users, err := s.svc.FindAdults(req.Context())
	if err != nil {
		return ErrorResult(err)
	}
	return OK(users, "found %d adults", len(users))
}

func (s *Server) epSearchUsers(req *http.Request) Result {
	pattern := req.URL.Query().Get("q")

	users, err := s.svc.SearchUsers(req.Context(), pattern)
	if err != nil {
		return ErrorResult(err)
	}
	return OK(users, "search %q matched %d users", pattern, len(users))
}

// parseJSONRequest decodes the JSON body of req into v, which must be a
// pointer.
func parseJSONRequest(req *http.Request, v interface{}) error {
	contentType := req.Header.Get("Content-Type")
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if strings.ToLower(mediaType) != "application/json" {
		return fmt.Errorf("request content-type is not application/json")
	}

	bodyData, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("could not read request body: %w", err)
	}
	defer func() {
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewBuffer(bodyData))
	}()

	if err := json.Unmarshal(bodyData, v); err != nil {
		return fmt.Errorf("malformed JSON in request: %w", err)
	}

	return nil
}

// requireIDParam gets the ID of the user referenced in the URI.
func requireIDParam(req *http.Request) (int64, error) {
	idStr := chi.URLParam(req, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id: not a valid user ID: %q", idStr)
	}
	return id, nil
}

// queryInt gets the integer value of query parameter key, or def if it is
// not present.
func queryInt(req *http.Request, key string, def int) (int, error) {
	s := req.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer: %q", key, s)
	}
	return v, nil
}
