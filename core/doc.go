// Package core provides the execution engine of agentstack. It defines:
//
//   - Interactions (the typed, persisted steps of an agent's work)
//   - Stack (a branch-aware ordered log of interactions plus shared State)
//   - Agent / Session (the tick based stepping loop)
//   - Conditions (pluggable evaluators used by Waiting interactions)
//   - Registry (the frozen lookup of tools, tasks, configs, sequences,
//     conditions and custom interaction kinds)
//   - Storage (the typed persistence contract over RecordStore / FileStore)
//
// Concrete tools, oracles and storage backends live in sibling packages and
// only depend on the small interfaces declared here.
package core
