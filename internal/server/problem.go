package server

import (
	"encoding/json"
	"net/http"
)

// Problem types for RFC 7807 responses.
const (
	ProblemTypeNotFound     = "https://campusnet.dev/problems/not-found"
	ProblemTypeInternal     = "https://campusnet.dev/problems/internal-error"
	ProblemTypeUnauthorized = "https://campusnet.dev/problems/unauthorized"
	ProblemTypeRateLimited  = "https://campusnet.dev/problems/rate-limited"
	ProblemTypeUnavailable  = "https://campusnet.dev/problems/unavailable"
)

// Problem is an RFC 7807 Problem Details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func problem(w http.ResponseWriter, typ string, status int, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     typ,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeNotFound, http.StatusNotFound, detail, instance)
}

// InternalError writes a 500 problem.
func InternalError(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeInternal, http.StatusInternalServerError, detail, instance)
}

// Unauthorized writes a 401 problem with a bearer challenge.
func Unauthorized(w http.ResponseWriter, detail, instance string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="campusnet"`)
	problem(w, ProblemTypeUnauthorized, http.StatusUnauthorized, detail, instance)
}

// RateLimited writes a 429 problem.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeRateLimited, http.StatusTooManyRequests, detail, instance)
}

// ServiceUnavailable writes a 503 problem.
func ServiceUnavailable(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeUnavailable, http.StatusServiceUnavailable, detail, instance)
}
