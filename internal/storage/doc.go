// Package storage owns the SQLite database backing the history and audit
// stores. It creates the file under the configured data directory and applies
// versioned schema migrations tracked in the schema_meta table.
package storage
