// Package testutil contains helpers shared by tests: a fluent builder for
// environments and sessions, a recording logger for asserting log output and
// stub tools. They are not intended for production usage.
package testutil
