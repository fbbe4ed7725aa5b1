package command

import (
	"errors"
	"fmt"
)

var (
	ErrCommandNotFound = errors.New("command not found")
	ErrArityMismatch   = errors.New("too many arguments")
	ErrArgumentType    = errors.New("argument type mismatch")
)

type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("command %q not found", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrCommandNotFound }

type ArityError struct {
	Name     string
	Declared int
	Supplied int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("command %q has %d parameters, but %d arguments were provided", e.Name, e.Declared, e.Supplied)
}

func (e *ArityError) Unwrap() error { return ErrArityMismatch }

// ArgumentTypeError reports the zero-based position of an argument that
// could not be converted to its parameter's kind.
type ArgumentTypeError struct {
	Name     string
	Position int
	Param    string
	Want     ParamKind
	Got      Kind
}

func (e *ArgumentTypeError) Error() string {
	return fmt.Sprintf("command %q: argument %d (%s) must be %s, got %s", e.Name, e.Position, e.Param, e.Want, e.Got)
}

func (e *ArgumentTypeError) Unwrap() error { return ErrArgumentType }
