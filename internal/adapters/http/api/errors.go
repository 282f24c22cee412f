package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/surfwatch/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
	ErrTooLarge    = errors.New("request body too large")
)

// Error tags a failure with the handler operation and its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap tags err with op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Error codes carried in the response envelope.
const (
	codeValidation  = "validation_error"
	codeBadRequest  = "bad_request"
	codeNotFound    = "not_found"
	codeRateLimited = "rate_limited"
	codeTooLarge    = "payload_too_large"
	codeInternal    = "internal_error"
)

// classify maps err to a status, envelope code, client message and field.
// Storage and unknown failures never leak their cause.
func classify(err error) (status int, code, msg, field string) {
	var ve *model.ValidationError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, codeValidation, ve.Error(), ve.Field
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, codeValidation, err.Error(), ""
	case errors.As(err, &mbe), errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, codeTooLarge, "request body exceeds the upload limit", "media"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, codeBadRequest, err.Error(), ""
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, codeNotFound, err.Error(), ""
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, codeRateLimited, "too many submissions, retry later", ""
	default:
		return http.StatusInternalServerError, codeInternal, "internal server error", ""
	}
}
