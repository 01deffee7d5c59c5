package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Boundary errors shared by handlers that have no more specific mapping.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// BadRequest writes a 400 problem for malformed payloads.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, ProblemDetail{Title: "Bad Request", Status: http.StatusBadRequest, Detail: detail})
}

// Unprocessable writes a 422 problem for business-rule violations. The detail
// names the violated rule and the offending values.
func Unprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, ProblemDetail{Title: "Business Rule Violation", Status: http.StatusUnprocessableEntity, Detail: detail})
}

// Conflict writes a 409 problem, used for lock contention with a retry hint.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, ProblemDetail{Title: "Conflict", Status: http.StatusConflict, Detail: detail})
}

// NotFound writes a 404 problem naming the missing resource.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: detail})
}

// Unauthorized writes a 401 problem.
func Unauthorized(w http.ResponseWriter, r *http.Request) {
	Problem(w, r, ProblemDetail{Title: "Unauthorized", Status: http.StatusUnauthorized,
		Detail: "login required"})
}

// ValidationProblem writes a 422 problem from validator field errors,
// one message per failed field.
func ValidationProblem(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		Problem(w, r, ProblemDetail{Title: "Validation Failed", Status: http.StatusUnprocessableEntity,
			Detail: "field " + fe.Field() + " failed rule " + fe.Tag()})
		return
	}
	Problem(w, r, ProblemDetail{Title: "Validation Failed", Status: http.StatusUnprocessableEntity,
		Detail: err.Error()})
}

// Internal writes a 500 problem. Infrastructure details stay in the logs;
// the response carries only the request ID so operators can correlate.
func Internal(w http.ResponseWriter, r *http.Request) {
	Problem(w, r, ProblemDetail{Title: "Internal Server Error", Status: http.StatusInternalServerError})
}
