package model

import (
	"fmt"

	"golang.org/x/xerrors"
)

// ErrNotImplemented is returned by a codec or backend that was compiled out
// of the binary.
var ErrNotImplemented = xerrors.New("not implemented")

// ImageDecodeError reports the raw image at Index could not be decoded.
type ImageDecodeError struct {
	Index int
	Err   error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("image %d: decode failed: %v", e.Index, e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// LabelLookupError reports a class index that is missing from the label table.
type LabelLookupError struct {
	Index int
	Size  int
}

func (e *LabelLookupError) Error() string {
	return fmt.Sprintf("class index %d not found in label table of %d entries", e.Index, e.Size)
}

// ModelExecutionError wraps an opaque failure from the model runtime.
type ModelExecutionError struct {
	Backend string
	Err     error
}

func (e *ModelExecutionError) Error() string {
	return fmt.Sprintf("%s: model execution failed: %v", e.Backend, e.Err)
}

func (e *ModelExecutionError) Unwrap() error {
	return e.Err
}

// OutputShapeError reports raw outputs that violate the length invariants
// between numDetections and the score, box and class arrays.
type OutputShapeError struct {
	Output string
	Batch  int
	Want   int
	Got    int
}

func (e *OutputShapeError) Error() string {
	return fmt.Sprintf("raw output %s[%d]: need at least %d entries, got %d", e.Output, e.Batch, e.Want, e.Got)
}

// InputError reports an invalid caller supplied raw input.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Field, e.Reason)
}
