package core

import "errors"

var (
	// ErrUnknownTask is returned when a task name is not registered.
	ErrUnknownTask = errors.New("unknown task")
	// ErrUnknownTool is returned when a config references an unregistered tool.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrUnknownInteraction is returned when a record type has no registered decoder.
	ErrUnknownInteraction = errors.New("unknown interaction kind")
	// ErrUnknownCondition is returned when a condition evaluator is not registered.
	ErrUnknownCondition = errors.New("unknown condition evaluator")
	// ErrUnknownConfig is returned when a config name is not registered.
	ErrUnknownConfig = errors.New("unknown config")
	// ErrUnknownSequence is returned when a task sequence is not registered.
	ErrUnknownSequence = errors.New("unknown task sequence")
	// ErrUnknownResponse is returned when a named response factory is not registered.
	ErrUnknownResponse = errors.New("unknown response factory")
	// ErrUnknownBranch is returned when forking from a branch that does not exist.
	ErrUnknownBranch = errors.New("unknown branch")
	// ErrTaskDefinitionNotFound is returned when a TaskResult has no owning TaskDefinition.
	ErrTaskDefinitionNotFound = errors.New("task definition not found")
	// ErrAgentNotFound is returned when a referenced agent is not part of the session.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrKeyNotFound is returned when deleting a missing state key.
	ErrKeyNotFound = errors.New("state key not found")
	// ErrNotFound is returned by storage when a record or file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBranchExists is returned when forking a branch name twice.
	ErrBranchExists = errors.New("branch already exists")
	// ErrNoOracle is returned when an AskOracle step runs without a configured oracle.
	ErrNoOracle = errors.New("no oracle configured")
	// ErrNoFileStore is returned when a file artifact is saved without a file store.
	ErrNoFileStore = errors.New("no file store configured")
	// ErrOracleLimit is returned when the oracle call budget is exhausted.
	ErrOracleLimit = errors.New("exceeded max oracle calls")
	// ErrEmptyReply is returned when an oracle answers with neither a reply nor an error.
	ErrEmptyReply = errors.New("empty oracle reply")
	// ErrMissingParameter is returned when a required task parameter has no value.
	ErrMissingParameter = errors.New("missing required parameter")
	// ErrRegistryFrozen is returned when registering after Build.
	ErrRegistryFrozen = errors.New("registry is frozen")
	// ErrDuplicateRegistration is returned when a name is registered twice.
	ErrDuplicateRegistration = errors.New("duplicate registration")
)
