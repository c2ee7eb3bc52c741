package google

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFilePerAccount(t *testing.T) {
	defaultPath := tokenFile("default")
	assert.True(t, strings.HasSuffix(defaultPath, "google.token"))
	assert.Equal(t, defaultPath, tokenFile(""), "empty account maps to default")

	workPath := tokenFile("work")
	assert.True(t, strings.HasSuffix(workPath, "google-work.token"))
	assert.NotEqual(t, defaultPath, workPath)
}

func TestHasTokenForAccountMissing(t *testing.T) {
	assert.False(t, HasTokenForAccount("no-such-account"))
}

func TestGetOAuthConfigRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_ID", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_SECRET", "")

	_, err := getOAuthConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_OAUTH_CLIENT_ID")
}

func TestGetOAuthConfigScopes(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_ID", "id")
	t.Setenv("GOOGLE_OAUTH_CLIENT_SECRET", "secret")

	conf, err := getOAuthConfig()
	require.NoError(t, err)
	require.Len(t, conf.Scopes, 1)
	assert.Equal(t, "https://mail.google.com/", conf.Scopes[0])
}

func TestGetAuthURL(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_ID", "id")
	t.Setenv("GOOGLE_OAUTH_CLIENT_SECRET", "secret")

	url, err := GetAuthURL()
	require.NoError(t, err)
	assert.Contains(t, url, "accounts.google.com")
	assert.Contains(t, url, "client_id=id")
}
