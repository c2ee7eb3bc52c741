// Package server exposes the REST API: a token endpoint guarded by a
// bcrypt-hashed password, and JWT-protected endpoints to trigger a triage
// cycle, browse delivery records and read dashboard statistics. Health
// probes and the Prometheus metrics listener live here too.
package server
