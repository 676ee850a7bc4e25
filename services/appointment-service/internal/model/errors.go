package model

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrCapacity             = errors.New("slot is full or blocked")
	ErrDuplicateBooking     = errors.New("duplicate booking")
	ErrNoCounselorAvailable = errors.New("no counselor available")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrAlreadyProcessed     = errors.New("already processed")
	ErrInvalidToken         = errors.New("invalid token")
	ErrAlreadyUsedOrInvalid = errors.New("token already used or invalid")
	ErrInvalidState         = errors.New("invalid state")
	ErrPersistence          = errors.New("persistence error")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
)

// Error carries the failing operation and its kind.
type Error struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

func E(op string, kind error, msg string) error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

func Wrap(op string, kind error, msg string, err error) error {
	return &Error{Op: op, Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the first known kind in err's chain, or nil.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

var kinds = []error{
	ErrValidation, ErrCapacity, ErrDuplicateBooking, ErrNoCounselorAvailable,
	ErrInvalidTransition, ErrAlreadyProcessed, ErrInvalidToken, ErrAlreadyUsedOrInvalid,
	ErrInvalidState, ErrPersistence, ErrNotFound, ErrForbidden,
}
