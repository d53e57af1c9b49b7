package i18n

// Error codes must match the codes defined in internal/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeStateInvalid        = "STATE_INVALID"
	CodeDirectorGoalEmpty   = "DIRECTOR_GOAL_EMPTY"
	CodeNodesInvalid        = "PLOT_NODES_INVALID"
	CodeCharactersInvalid   = "CHARACTERS_INVALID"
	CodeControlValueInvalid = "CONTROL_VALUE_INVALID"
	CodeGenerationTimeout   = "GENERATION_TIMEOUT"
	CodeGenerationFailure   = "GENERATION_FAILURE"
	CodeNotFound            = "NOT_FOUND"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		CodeStateInvalid:        "The story state is corrupted; reset the session to continue",
		CodeDirectorGoalEmpty:   "A story goal is required to start",
		CodeNodesInvalid:        "The story outline is invalid",
		CodeCharactersInvalid:   "The character ensemble is invalid",
		CodeControlValueInvalid: "That control value is out of range",
		CodeGenerationTimeout:   "The scene took too long to write; try again",
		CodeGenerationFailure:   "The scene could not be written; try again",
		CodeNotFound:            "That session does not exist",
	},
}
