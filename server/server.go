// Package server exposes a service.UserService as an HTTP JSON API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/dekarrin/jelstore"
	"github.com/dekarrin/jelstore/internal/logging"
	"github.com/dekarrin/jelstore/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RequestIDHeader is the response header that carries the ID assigned to each
// request. The same ID is included in the log line for the request.
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const ctxKeyRequestID ctxKey = iota

// Server is an HTTP server for the user API. The zero-value of a Server should
// not be used directly; call New to get one ready for use.
type Server struct {
	mtx     *sync.Mutex
	rtr     chi.Router
	closing bool
	serving bool
	http    *http.Server

	svc service.UserService

	log jelstore.Logger // if logging disabled, this will be set to a no-op logger
}

// New creates a Server that performs operations with svc. If log is nil,
// nothing is logged.
func New(svc service.UserService, log jelstore.Logger) *Server {
	if log == nil {
		log = logging.NoOpLogger{}
	}

	return &Server{
		mtx: &sync.Mutex{},
		svc: svc,
		log: log,
	}
}

// Handler returns the http.Handler that serves the API.
func (s *Server) Handler() http.Handler {
	return s.router()
}

func (s *Server) router() chi.Router {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.rtr != nil {
		return s.rtr
	}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.dontPanic)
	r.MethodNotAllowed(s.Endpoint(func(req *http.Request) Result {
		return MethodNotAllowed(req)
	}))
	r.NotFound(s.Endpoint(func(req *http.Request) Result {
		return NotFound("no route for %s", req.URL.Path)
	}))

	r.Route("/users", func(r chi.Router) {
		r.Get("/", s.Endpoint(s.epListUsers))
		r.Post("/", s.Endpoint(s.epCreateUser))
		r.Get("/adults", s.Endpoint(s.epFindAdults))
		r.Get("/search", s.Endpoint(s.epSearchUsers))
		r.Get("/{id:[0-9]+}", s.Endpoint(s.epGetUser))
		r.Post("/{id:[0-9]+}/birthday", s.Endpoint(s.epIncrementAge))
		r.Delete("/{id:[0-9]+}", s.Endpoint(s.epDeleteUser))
	})

	s.rtr = r
	return r
}

// RoutesIndex returns a human-readable formatted string that lists all routes
// and methods available in the server.
func (s *Server) RoutesIndex() string {
	routeMethods := map[string][]string{}

	chi.Walk(s.router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routeMethods[route] = append(routeMethods[route], method)
		return nil
	})

	allRoutes := []string{}
	for name := range routeMethods {
		allRoutes = append(allRoutes, name)
	}
	sort.Strings(allRoutes)

	var sb strings.Builder
	for _, r := range allRoutes {
		meths := routeMethods[r]
		sort.Strings(meths)

		sb.WriteString("* ")
		sb.WriteString(r)
		sb.WriteString(" - ")
		sb.WriteString(strings.Join(meths, ", "))
		sb.WriteRune('\n')
	}

	return strings.TrimSpace(sb.String())
}

// Endpoint converts an endpoint function into an http.HandlerFunc that writes
// and logs its Result.
func (s *Server) Endpoint(ep func(req *http.Request) Result) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r := ep(req)
		r.WriteResponse(w)
		s.logResult(req, r)
	}
}

func (s *Server) logResult(req *http.Request, r Result) {
	// we don't really care about the ephemeral port from the client end
	remoteIP := strings.SplitN(req.RemoteAddr, ":", 2)[0]
	reqID, _ := req.Context().Value(ctxKeyRequestID).(string)

	if r.IsErr {
		s.log.Errorf("%s [%s] %s %s: HTTP-%d %s", remoteIP, reqID, req.Method, req.URL.Path, r.Status, r.InternalMsg)
	} else {
		s.log.Infof("%s [%s] %s %s: HTTP-%d %s", remoteIP, reqID, req.Method, req.URL.Path, r.Status, r.InternalMsg)
	}
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(req.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// dontPanic writes a generic HTTP-500 and logs the panic if a handler panics.
func (s *Server) dontPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if panicErr := recover(); panicErr != nil {
				r := InternalServerError("panic: %v\nSTACK TRACE: %s", panicErr, string(debug.Stack()))
				r.WriteResponse(w)
				s.logResult(req, r)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

// ServeForever begins listening on addr for HTTP client requests.
//
// This function will block until the server is stopped. If it returns as a
// result of Shutdown being called elsewhere, it will return
// http.ErrServerClosed.
func (s *Server) ServeForever(addr string) (err error) {
	s.mtx.Lock()
	if s.serving {
		s.mtx.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.serving = true
	s.mtx.Unlock()

	rtr := s.router()

	s.mtx.Lock()
	s.http = &http.Server{Addr: addr, Handler: rtr}
	srv := s.http
	s.mtx.Unlock()

	defer func() {
		s.mtx.Lock()
		s.closing = false
		s.serving = false
		s.mtx.Unlock()
	}()

	s.log.Infof("Listening on %s", addr)
	return srv.ListenAndServe()
}

// Shutdown shuts down the server gracefully. This will cause ServeForever to
// return in any goroutine that is blocking on it. If ctx is canceled while
// shutting down, it stops waiting for open connections.
//
// Returns a non-nil error if the server is not currently running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mtx.Lock()
	if s.closing {
		s.mtx.Unlock()
		return fmt.Errorf("close already in-progress in another goroutine")
	}
	if !s.serving || s.http == nil {
		s.mtx.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.closing = true
	srv := s.http
	s.http = nil
	s.mtx.Unlock()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop HTTP server: %w", err)
	}
	return nil
}
