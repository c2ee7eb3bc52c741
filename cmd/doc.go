// Package cmd implements the inboxtriage CLI: process runs one triage
// cycle, serve runs the REST API with a background poller, auth manages
// the Google OAuth tokens.
package cmd
