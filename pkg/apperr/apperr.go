// Package apperr holds the error taxonomy shared by the analysis pipeline,
// the chat store and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAudio         = errors.New("no audio file uploaded")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConversionFailed     = errors.New("audio conversion failed")
	ErrClassificationFailed = errors.New("genre classification failed")
	ErrSuggestionFailed     = errors.New("suggestion generation failed")
	ErrNotFound             = errors.New("not found")
	ErrPersistence          = errors.New("persistence failed")
)

var kinds = []error{
	ErrMissingAudio,
	ErrInvalidInput,
	ErrConversionFailed,
	ErrClassificationFailed,
	ErrSuggestionFailed,
	ErrNotFound,
	ErrPersistence,
}

// Error attaches a taxonomy kind and the failing operation to an underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func New(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind error, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return fmt.Sprint(e.Kind)
	}
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the taxonomy sentinel err belongs to, or nil when it is unclassified.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
