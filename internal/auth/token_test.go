package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tk := NewTokens("unit-test-secret")

	token, err := tk.Issue("user-1", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, username, err := tk.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "alice", username)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewTokens("secret-a").Issue("user-1", "alice")
	require.NoError(t, err)

	_, _, err = NewTokens("secret-b").Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, _, err := NewTokens("secret").Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
