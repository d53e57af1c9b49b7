package errors

import (
	"errors"
	"fmt"

	"github.com/stagecraft-live/stagecraft/internal/storage"
	"github.com/stagecraft-live/stagecraft/internal/story/domain"
	"github.com/stagecraft-live/stagecraft/internal/story/generate"
)

// Error is a domain error carrying a machine-readable code and optional
// message metadata.
type Error struct {
	Code     Code
	Metadata map[string]string
	cause    error
}

// New creates a domain error with the given code.
func New(code Code) *Error {
	return &Error{Code: code}
}

// Wrap attaches a code to an underlying error.
func Wrap(err error, code Code) *Error {
	return &Error{Code: code, cause: err}
}

// WithMetadata adds a metadata entry used by message formatting.
func (e *Error) WithMetadata(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// GetCode extracts the error code from any error. Sentinel errors from the
// domain, generation, and storage layers map to their codes; everything else
// is CodeUnknown.
func GetCode(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, domain.ErrEmptyDirectorGoal):
		return CodeDirectorGoalEmpty
	case errors.Is(err, domain.ErrControlValueInvalid):
		return CodeControlValueInvalid
	case errors.Is(err, domain.ErrEmptyNodes),
		errors.Is(err, domain.ErrEmptyBeat),
		errors.Is(err, domain.ErrEmptyGoal),
		errors.Is(err, domain.ErrNoExitConditions),
		errors.Is(err, domain.ErrNodeIDMismatch):
		return CodeNodesInvalid
	case errors.Is(err, domain.ErrEmptyCharacterID),
		errors.Is(err, domain.ErrEmptyCharacterName),
		errors.Is(err, domain.ErrDuplicateCharacterID):
		return CodeCharactersInvalid
	case errors.Is(err, domain.ErrStateInvalid):
		return CodeStateInvalid
	case errors.Is(err, generate.ErrGenerationTimeout):
		return CodeGenerationTimeout
	case errors.Is(err, generate.ErrGenerationFailure):
		return CodeGenerationFailure
	case errors.Is(err, storage.ErrNotFound):
		return CodeNotFound
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
func GetMetadata(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
