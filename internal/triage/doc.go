// Package triage implements the email triage pipeline.
//
// A cycle fetches unread inbox messages and runs each through four stages:
// classification (binary meeting decision), analysis (parameter extraction,
// risk and tone), categorization (final validation) and delivery (reply,
// star or mark read, plus the audit record). Processed message ids go into a
// rolling seven-day history so a message is acted on at most once; a message
// that fails mid-pipeline is left untouched and picked up again next cycle.
//
// The package depends only on the Mailbox, Classifier, Analyzer, History and
// AuditLog interfaces. Production wiring binds them to the Gmail API, the
// hosted model endpoints and the SQLite stores.
package triage
