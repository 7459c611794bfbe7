package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dekarrin/jelstore/serr"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// Result is the outcome of an endpoint. It is written to the client with
// WriteResponse and logged with the internal message.
type Result struct {
	Status      int
	IsErr       bool
	InternalMsg string

	Resp interface{}

	hdrs [][2]string
}

func (r Result) WithHeader(name, val string) Result {
	rCopy := r
	rCopy.hdrs = make([][2]string, len(r.hdrs), len(r.hdrs)+1)
	copy(rCopy.hdrs, r.hdrs)
	rCopy.hdrs = append(rCopy.hdrs, [2]string{name, val})
	return rCopy
}

func (r Result) WriteResponse(w http.ResponseWriter) {
	// if this hasn't been properly created, panic
	if r.Status == 0 {
		panic("result not populated")
	}

	var respBytes []byte
	if r.Status != http.StatusNoContent {
		var err error
		respBytes, err = json.Marshal(r.Resp)
		if err != nil {
			panic(fmt.Sprintf("could not marshal response: %s", err.Error()))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	for i := range r.hdrs {
		w.Header().Set(r.hdrs[i][0], r.hdrs[i][1])
	}

	w.WriteHeader(r.Status)

	if r.Status != http.StatusNoContent {
		w.Write(respBytes)
	}
}

// Response returns a non-error Result. If status is http.StatusNoContent,
// respObj is not read and may be nil. If additional values are provided they
// are given to internalMsg as a format string.
func Response(status int, respObj interface{}, internalMsg string, v ...interface{}) Result {
	return Result{
		Status:      status,
		InternalMsg: fmt.Sprintf(internalMsg, v...),
		Resp:        respObj,
	}
}

// Err returns an error Result whose body is an ErrorResponse holding userMsg.
// If additional values are provided they are given to internalMsg as a format
// string.
func Err(status int, userMsg, internalMsg string, v ...interface{}) Result {
	return Result{
		Status:      status,
		IsErr:       true,
		InternalMsg: fmt.Sprintf(internalMsg, v...),
		Resp: ErrorResponse{
			Error:  userMsg,
			Status: status,
		},
	}
}

func OK(respObj interface{}, internalMsg string, v ...interface{}) Result {
	return Response(http.StatusOK, respObj, internalMsg, v...)
}

func Created(respObj interface{}, internalMsg string, v ...interface{}) Result {
	return Response(http.StatusCreated, respObj, internalMsg, v...)
}

func NoContent(internalMsg string, v ...interface{}) Result {
	return Response(http.StatusNoContent, nil, internalMsg, v...)
}

func BadRequest(userMsg string, internalMsg string, v ...interface{}) Result {
	return Err(http.StatusBadRequest, userMsg, internalMsg, v...)
}

func NotFound(internalMsg string, v ...interface{}) Result {
	return Err(http.StatusNotFound, "The requested resource was not found", internalMsg, v...)
}

func MethodNotAllowed(req *http.Request) Result {
	userMsg := fmt.Sprintf("Method %s is not allowed for %s", req.Method, req.URL.Path)
	return Err(http.StatusMethodNotAllowed, userMsg, "method not allowed")
}

func InternalServerError(internalMsg string, v ...interface{}) Result {
	return Err(http.StatusInternalServerError, "An internal server error occurred", internalMsg, v...)
}

// ErrorResult converts an error returned by the user service into a Result.
// Validation errors (alone or aggregated) become HTTP-400 with the error text
// shown to the client, NotFound becomes HTTP-404, and anything else is an
// HTTP-500 whose details are only logged.
func ErrorResult(err error) Result {
	switch {
	case errors.Is(err, serr.ErrValidation):
		return BadRequest(err.Error(), "%v", err)
	case errors.Is(err, serr.ErrNotFound):
		var sErr serr.Error
		if errors.As(err, &sErr) {
			return Err(http.StatusNotFound, sErr.Message(), "%v", err)
		}
		return NotFound("%v", err)
	default:
		return InternalServerError("%v", err)
	}
}
