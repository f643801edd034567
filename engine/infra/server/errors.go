package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/compozy/relay/engine/core"
)

// Error codes
const (
	ErrInternalCode   = "INTERNAL_ERROR"
	ErrBadRequestCode = "BAD_REQUEST"
)

// Error represents errors raised by the HTTP layer before dispatch
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) statusCode() int {
	switch e.Code {
	case ErrBadRequestCode:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// problemFromError maps HTTP layer errors onto problems and defers
// everything else to the dispatch error taxonomy.
func problemFromError(err error) *core.Problem {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return core.NormalizeProblem(&core.Problem{
			Status: httpErr.statusCode(),
			Detail: httpErr.Message,
			Extras: map[string]any{"code": httpErr.Code},
		})
	}
	return core.ProblemFromError(err)
}
