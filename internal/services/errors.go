package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindNoCredentials
	KindProvider
	KindUnsupported
	KindToolMissing
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindNoCredentials:
		return "no_credentials"
	case KindProvider:
		return "provider"
	case KindUnsupported:
		return "unsupported_format"
	case KindToolMissing:
		return "tool_missing"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Status maps a kind to the HTTP status used at the API boundary.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindUnsupported:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type services hand to the HTTP layer. Message is
// shown to the user as is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func ErrValidation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func ErrUnauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func ErrForbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func ErrNotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func WrapError(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Internal(err error, msg string) error {
	return WrapError(KindInternal, err, msg)
}

// KindOf reports the kind of err; errors that are not *Error are internal.
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return KindInternal
}

// PublicMessage returns the text to show the caller for err.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var serr *Error
	if errors.As(err, &serr) {
		if serr.Kind == KindInternal && serr.Err != nil {
			return fmt.Sprintf("%s: %v", serr.Message, serr.Err)
		}
		return serr.Message
	}
	return err.Error()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
