// Package storage groups the RecordStore / FileStore backends of agentstack.
//
//   - memory: process local maps, the default for tests and examples
//   - sqlstore: gorm backed tables (MySQL in production, SQLite in tests)
//   - redisstore: go-redis backed keys and index sets
//
// Every backend only implements the flat record contract declared in core;
// rebuilding sessions, agents and stacks is done by core.Storage.
package storage
