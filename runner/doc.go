// Package runner drives sessions to completion.
//
// A Runner launches a registered task (or task sequence) in a fresh session,
// ticks it until no agent makes progress and reports the final TaskResult of
// the root agent. Sessions persisted by the environment's storage can be
// resumed by id after a restart. Runs are cancellable by session id and the
// number of concurrently executing runs is bounded.
package runner
