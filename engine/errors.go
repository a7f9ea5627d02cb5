package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInputNotFound is returned when the input image file does not exist.
	ErrInputNotFound = errors.New("input image not found")
	// ErrModelNotFound is returned when the weights file does not exist.
	ErrModelNotFound = errors.New("model weights not found")
)

// LoadErrorKind classifies weight loading failures.
type LoadErrorKind int

const (
	// LoadCorrupt means the weights file could not be parsed or holds an unsupported dtype.
	LoadCorrupt LoadErrorKind = iota + 1
	// LoadMissingParam means a network parameter has no tensor in the file.
	LoadMissingParam
	// LoadUnexpectedParam means the file holds a tensor the network does not have.
	LoadUnexpectedParam
	// LoadShapeMismatch means a tensor shape differs from the parameter shape.
	LoadShapeMismatch
)

// String returns string representation of a load error kind.
func (k LoadErrorKind) String() string {
	switch k {
	case LoadCorrupt:
		return "corrupt weights"
	case LoadMissingParam:
		return "missing parameter"
	case LoadUnexpectedParam:
		return "unexpected parameter"
	case LoadShapeMismatch:
		return "shape mismatch"
	}
	return fmt.Sprintf("unknown kind=%d", k)
}

// LoadError reports why a weights file could not be bound to a network.
type LoadError struct {
	Kind  LoadErrorKind
	Param string
	Err   error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	msg := "load weights: " + e.Kind.String()
	if e.Param != "" {
		msg += fmt.Sprintf(" %q", e.Param)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// DecodeError reports an image file that exists but cannot be decoded.
type DecodeError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ShapeError reports a tensor shape that violates a stage contract.
type ShapeError struct {
	Stage string
	Want  Shape
	Got   Shape
	Msg   string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: shape mismatch: want %v, got %v: %s", e.Stage, e.Want, e.Got, e.Msg)
	}
	return fmt.Sprintf("%s: shape mismatch: want %v, got %v", e.Stage, e.Want, e.Got)
}
