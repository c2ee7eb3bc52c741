// Package google handles OAuth2 authentication against the Google APIs.
// Tokens are cached per account under the user cache directory; the OAuth
// client credentials come from the GOOGLE_OAUTH_CLIENT_ID and
// GOOGLE_OAUTH_CLIENT_SECRET environment variables.
package google
