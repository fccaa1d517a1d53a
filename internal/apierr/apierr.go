package apierr

import (
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func InvalidRequest(format string, args ...interface{}) *Error {
	return New(http.StatusBadRequest, "invalid_request", fmt.Errorf(format, args...))
}

func VersionNotFound(versionID fmt.Stringer) *Error {
	return New(http.StatusNotFound, "version_not_found", fmt.Errorf("template version %s not found", versionID))
}

func ComparisonNotFound(comparisonID fmt.Stringer) *Error {
	return New(http.StatusNotFound, "comparison_not_found", fmt.Errorf("comparison %s not found", comparisonID))
}

func PersistenceFailure(err error) *Error {
	return New(http.StatusInternalServerError, "persistence_failure", err)
}
