package errs

import (
	"errors"
	"net/http"
	"strings"
)

// Code is the machine-readable error class returned to clients.
type Code string

const (
	InvalidArgument Code = "invalid_argument"
	AuthExpired     Code = "auth_expired"
	Unauthorized    Code = "unauthorized"
	Forbidden       Code = "forbidden"
	NotFound        Code = "not_found"
	Conflict        Code = "conflict"
	InvalidState    Code = "invalid_state"
	RateLimited     Code = "rate_limited"
	Internal        Code = "internal"
)

var httpStatus = map[Code]int{
	InvalidArgument: http.StatusBadRequest,
	AuthExpired:     http.StatusUnauthorized,
	Unauthorized:    http.StatusUnauthorized,
	Forbidden:       http.StatusForbidden,
	NotFound:        http.StatusNotFound,
	Conflict:        http.StatusConflict,
	InvalidState:    http.StatusConflict,
	RateLimited:     http.StatusTooManyRequests,
	Internal:        http.StatusInternalServerError,
}

// Error carries a Code through fmt.Errorf("%w") wrapping.
type Error struct {
	Code   Code   `json:"error"`
	Msg    string `json:"message"`
	Detail string `json:"detail,omitempty"`
	Err    error  `json:"-"`
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap attaches a code to an underlying cause.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

func (e *Error) WithDetail(detail string) *Error {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &Error{Code: e.Code, Msg: e.Msg, Detail: d, Err: e.Err}
}

func (e *Error) Error() string {
	parts := []string{string(e.Code), e.Msg}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, errs.New(errs.NotFound, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func Invalidf(msg string) *Error   { return New(InvalidArgument, msg) }
func NotFoundf(msg string) *Error  { return New(NotFound, msg) }
func Conflictf(msg string) *Error  { return New(Conflict, msg) }
func Forbiddenf(msg string) *Error { return New(Forbidden, msg) }
func Statef(msg string) *Error     { return New(InvalidState, msg) }

// CodeOf returns the code of the first *Error in err's chain, Internal otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	if s, ok := httpStatus[CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Message is the client-facing text. Internal causes are not exposed.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != Internal {
		if e.Detail != "" {
			return e.Msg + ": " + e.Detail
		}
		return e.Msg
	}
	return "internal server error"
}
