package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the core wraps exactly one of these.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrOutOfRange       = errors.New("out of range")
	ErrConflict         = errors.New("conflict")
	ErrInternal         = errors.New("internal error")
)

var (
	// ErrNoPrincipal is returned when an operation requires an authenticated caller.
	ErrNoPrincipal = Errorf(ErrUnauthenticated, "you must be authenticated")
	// ErrUserNotFound is returned when the principal document does not exist.
	ErrUserNotFound = Errorf(ErrNotFound, "user not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = Errorf(ErrNotFound, "question set not found")
	// ErrQuestionOutOfRange indicates a question index beyond the question set.
	ErrQuestionOutOfRange = Errorf(ErrOutOfRange, "question index is out of range")
	// ErrCommentNotFound indicates the referenced comment or reply is absent.
	ErrCommentNotFound = Errorf(ErrNotFound, "comment not found")
	// ErrSessionNotFound is returned when a play session has not been started.
	ErrSessionNotFound = Errorf(ErrNotFound, "quiz session not found")
	// ErrSessionChanged is returned when another call moved the play session first.
	ErrSessionChanged = Errorf(ErrConflict, "quiz session changed, reload it and try again")
	// ErrNotAuthor is returned when a non-author, non-admin tries to delete.
	ErrNotAuthor = Errorf(ErrPermissionDenied, "only the author or an admin can delete this")
	// ErrEmptyText is returned for blank comments and replies.
	ErrEmptyText = Errorf(ErrInvalidArgument, "text must not be empty")
	// ErrTextTooLong is returned for comments and replies over MaxCommentLength.
	ErrTextTooLong = Errorf(ErrInvalidArgument, "text must not exceed %d characters", MaxCommentLength)
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Errorf builds an error of the given kind with a caller-facing message.
func Errorf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Code is the wire representation of an error kind.
type Code string

const (
	CodeOK               Code = "ok"
	CodeUnauthenticated  Code = "unauthenticated"
	CodePermissionDenied Code = "permission-denied"
	CodeInvalidArgument  Code = "invalid-argument"
	CodeNotFound         Code = "not-found"
	CodeOutOfRange       Code = "out-of-range"
	CodeConflict         Code = "conflict"
	CodeInternal         Code = "internal"
)

var kindCodes = []struct {
	kind error
	code Code
}{
	{ErrUnauthenticated, CodeUnauthenticated},
	{ErrPermissionDenied, CodePermissionDenied},
	{ErrInvalidArgument, CodeInvalidArgument},
	{ErrNotFound, CodeNotFound},
	{ErrOutOfRange, CodeOutOfRange},
	{ErrConflict, CodeConflict},
	{ErrInternal, CodeInternal},
}

// CodeOf classifies err. Unclassified errors are internal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, kc := range kindCodes {
		if errors.Is(err, kc.kind) {
			return kc.code
		}
	}
	return CodeInternal
}
