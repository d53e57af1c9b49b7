// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Plot state errors
	CodeStateInvalid        Code = "STATE_INVALID"
	CodeDirectorGoalEmpty   Code = "DIRECTOR_GOAL_EMPTY"
	CodeNodesInvalid        Code = "PLOT_NODES_INVALID"
	CodeCharactersInvalid   Code = "CHARACTERS_INVALID"
	CodeControlValueInvalid Code = "CONTROL_VALUE_INVALID"

	// Generation errors
	CodeGenerationTimeout Code = "GENERATION_TIMEOUT"
	CodeGenerationFailure Code = "GENERATION_FAILURE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeDirectorGoalEmpty,
		CodeNodesInvalid,
		CodeCharactersInvalid,
		CodeControlValueInvalid:
		return http.StatusBadRequest

	// Not found - resource doesn't exist
	case CodeNotFound:
		return http.StatusNotFound

	// Upstream generation problems
	case CodeGenerationTimeout:
		return http.StatusGatewayTimeout
	case CodeGenerationFailure:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
