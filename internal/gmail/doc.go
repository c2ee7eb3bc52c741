// Package gmail binds the triage pipeline's Mailbox interface to the Gmail
// API: listing unread inbox messages, extracting headers and bodies from the
// MIME tree, label changes for read/starred state, and threaded replies.
//
// Authentication uses the OAuth token cached by the google package; run
// `inboxtriage auth` once per account to obtain it.
package gmail
