package core

import (
	"errors"
	"maps"
	"net/http"
)

// Problem captures the information returned in an RFC 7807 error response.
type Problem struct {
	Type     string
	Title    string
	Status   int
	Detail   string
	Instance string
	Extras   map[string]any
}

// NormalizeProblem ensures the provided problem includes canonical defaults.
func NormalizeProblem(problem *Problem) *Problem {
	if problem == nil {
		problem = &Problem{}
	}
	if problem.Status == 0 {
		problem.Status = http.StatusInternalServerError
	}
	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}
	if problem.Type == "" {
		problem.Type = "about:blank"
	}
	return problem
}

// BuildProblemBody assembles the serialized representation of the problem.
func BuildProblemBody(problem *Problem) map[string]any {
	body := map[string]any{
		"status": problem.Status,
		"error":  problem.Title,
	}
	if problem.Detail != "" {
		body["details"] = problem.Detail
	}
	if code, ok := problem.Extras["code"]; ok {
		body["code"] = code
	}
	if problem.Type != "" {
		body["type"] = problem.Type
	}
	if problem.Instance != "" {
		body["instance"] = problem.Instance
	}
	for key, value := range problem.Extras {
		if !isReservedProblemKey(key) {
			body[key] = value
		}
	}
	return body
}

func isReservedProblemKey(key string) bool {
	switch key {
	case "status", "error", "details", "code", "type", "instance":
		return true
	default:
		return false
	}
}

// ProblemFromError maps dispatch failures onto problem documents. Errors
// outside the taxonomy become opaque 500s.
func ProblemFromError(err error) *Problem {
	var nameErr *NameError
	var cfgErr *ConfigurationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &nameErr):
		return NormalizeProblem(&Problem{
			Status: http.StatusBadRequest,
			Detail: nameErr.Error(),
			Extras: map[string]any{"code": "invalid_name", "kind": string(nameErr.Kind)},
		})
	case errors.Is(err, ErrTooManyExecutions):
		return NormalizeProblem(&Problem{
			Status: http.StatusLoopDetected,
			Detail: err.Error(),
			Extras: map[string]any{"code": "too_many_executions"},
		})
	case errors.Is(err, ErrUnknownOutputType):
		return NormalizeProblem(&Problem{
			Status: http.StatusNotAcceptable,
			Detail: err.Error(),
			Extras: map[string]any{"code": "unknown_output_type"},
		})
	case errors.As(err, &cfgErr):
		return NormalizeProblem(&Problem{
			Status: http.StatusInternalServerError,
			Detail: "application is misconfigured",
			Extras: map[string]any{"code": "configuration_error"},
		})
	default:
		return NormalizeProblem(&Problem{Status: http.StatusInternalServerError})
	}
}

// CopyMaps merges the given maps into a new map; later maps win.
func CopyMaps(ms ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range ms {
		maps.Copy(out, m)
	}
	return out
}
