// Package oracle provides core.Oracle implementations.
//
// Scripted replays canned replies and is used by tests and deterministic
// examples. Provider adapters live in the openai and anthropic sub packages
// and translate core.OracleRequest transcripts into the vendor SDK formats.
package oracle
