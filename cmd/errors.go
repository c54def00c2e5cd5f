package cmd

import (
	"errors"
	"fmt"
)

var (
	ErrRoomsHidden = errors.New("room listing is disabled on this relay")
	ErrRelayClosed = errors.New("connection to relay closed")
	ErrInvalidRoom = errors.New("invalid room ID")
	ErrBadResponse = errors.New("unexpected response from relay")
)

// OpError ties a failure to the step of the command that produced it.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}
