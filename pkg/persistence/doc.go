// Package persistence provides the policy storage backends used by the
// policy store.
//
// Every backend implements Backend: LoadAll at startup, Save on every
// committed mutation, Delete when a policy is removed. Backends store whole
// policy documents; they do not interpret status or version.
//
// Available backends:
//
//   - memory:   process-local map, the default
//   - yaml:     one <id>.yaml file per policy in a directory
//   - sqlite:   a single-file database via modernc.org/sqlite
//   - postgres: a PostgreSQL table via pgx
//
// Open selects a backend from configuration. All errors are reported as
// *governance.PersistenceError naming the backend and operation.
package persistence
