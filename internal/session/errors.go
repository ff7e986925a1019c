package session

import (
	"errors"
	"net/http"
)

var (
	ErrNotLoggedIn = errors.New("not logged in")

	// Specializations of [LoginError]
	ErrAlreadyLoggedIn      = errors.New("already logged in")
	ErrVersionOutOfDate     = errors.New("version out of date")
	ErrVerificationRequired = errors.New("verification of new hardware required")
)

// LoginError represents a login which was rejected by the server.
//
// Use [errors.Is] to check for a specialization like [ErrAlreadyLoggedIn]
// and [errors.As] to access the underlying [transport.HTTPError].
type LoginError struct {
	Text       string
	StatusCode int

	kind error
	err  error
}

func (e *LoginError) Error() string {
	return e.Text
}

func (e *LoginError) Unwrap() []error {
	var errs []error
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.err != nil {
		errs = append(errs, e.err)
	}
	return errs
}

func newAlreadyLoggedInError(err error) *LoginError {
	return &LoginError{Text: "Already logged in", StatusCode: http.StatusConflict, kind: ErrAlreadyLoggedIn, err: err}
}

func newVersionOutOfDateError(err error) *LoginError {
	return &LoginError{Text: "Version out of date", StatusCode: http.StatusBadRequest, kind: ErrVersionOutOfDate, err: err}
}
