package api

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrQuotaExceeded = errors.New("rate limited by API")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrValidation    = errors.New("request rejected by API")
	ErrTransient     = errors.New("transient API failure")
)

// Kind classifies a failed API call.
type Kind int

const (
	KindTransient Kind = iota
	KindQuotaExceeded
	KindValidation
	KindNotFound
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	default:
		return "transient"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindQuotaExceeded:
		return ErrQuotaExceeded
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindAuth:
		return ErrAuthFailed
	default:
		return ErrTransient
	}
}

// Error is returned for every failed API call. Use errors.Is with the
// sentinels above to switch on the kind.
type Error struct {
	Kind   Kind
	Status int
	Op     string
	Code   string
	Title  string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Title != "" {
		msg += ": " + e.Title
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindTransient if err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransient
}

func kindForStatus(status int) Kind {
	switch {
	case status == 429:
		return KindQuotaExceeded
	case status == 404:
		return KindNotFound
	case status == 401 || status == 403:
		return KindAuth
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindTransient
	}
}
