// Package apperror defines the error kinds surfaced by the stock ledger,
// the change queue and the sync coordinator.
package apperror

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindInvalidArgument Kind = "invalid_argument"
	KindConflict        Kind = "conflict"
	// KindLocalStorage means the record store itself failed. Fatal for the
	// operation in flight.
	KindLocalStorage Kind = "local_storage"
	// KindRemoteDispatch is recovered by the coordinator and never reaches
	// callers of AdjustStock.
	KindRemoteDispatch Kind = "remote_dispatch"
	KindUnknown        Kind = "unknown"
)

type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(op, format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Invalid(op, format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(op, format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	// Keep the innermost classification when a repository already wrapped it.
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindLocalStorage, Op: op, Err: err}
}

func Remote(op string, err error) error {
	return &Error{Kind: KindRemoteDispatch, Op: op, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
