package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSession() *Session {
	return &Session{
		UserToken: "user-token",
		User:      User{ID: 7, Login: "octo", Name: "Octo Cat"},
		Installations: []Installation{
			{ID: 11, Account: Account{Login: "octo", Type: AccountUser}, RepositorySelection: SelectionAll},
			{ID: 12, Account: Account{Login: "acme", Type: AccountOrganization}, RepositorySelection: SelectionSelected},
		},
	}
}

func TestSessionValidate(t *testing.T) {
	require.NoError(t, validSession().Validate())
}

func TestSessionValidate_MissingUserToken(t *testing.T) {
	s := validSession()
	s.UserToken = ""
	require.Error(t, s.Validate())
}

func TestSessionValidate_IncompleteUser(t *testing.T) {
	s := validSession()
	s.User.Login = ""
	require.Error(t, s.Validate())
}

func TestSessionValidate_TokenWithoutInstallation(t *testing.T) {
	s := validSession()
	s.InstallationToken = &Token{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set together")
}

func TestSessionValidate_InstallationWithoutToken(t *testing.T) {
	s := validSession()
	s.CurrentInstallation = &s.Installations[0]
	require.Error(t, s.Validate())
}

func TestSessionValidate_BadRepositorySelection(t *testing.T) {
	s := validSession()
	s.Installations[0].RepositorySelection = "some"
	require.Error(t, s.Validate())
}

func TestSetAndClearInstallation(t *testing.T) {
	s := validSession()
	tok := Token{Token: "tok", ExpiresAt: time.Now().Add(time.Hour), RepositorySelection: SelectionAll}
	s.SetInstallation(s.Installations[0], tok)
	require.NoError(t, s.Validate())
	assert.Equal(t, int64(11), s.CurrentInstallation.ID)
	assert.Equal(t, "tok", s.InstallationToken.Token)

	s.ClearInstallation()
	require.NoError(t, s.Validate())
	assert.Nil(t, s.CurrentInstallation)
	assert.Nil(t, s.InstallationToken)
}

func TestFindInstallation(t *testing.T) {
	s := validSession()
	assert.Nil(t, s.FindInstallation(99))
	inst := s.FindInstallation(12)
	require.NotNil(t, inst)
	assert.Equal(t, "acme", inst.Account.Login)
}

func TestTokenIsExpiringSoon(t *testing.T) {
	now := time.Now()
	tok := Token{Token: "tok", ExpiresAt: now.Add(10 * time.Minute)}
	assert.False(t, tok.IsExpiringSoon(now))
	assert.True(t, tok.IsExpiringSoon(now.Add(6*time.Minute)))
	// Exactly at the window boundary counts as fresh.
	assert.False(t, tok.IsExpiringSoon(now.Add(5*time.Minute)))
	// Already expired is trivially stale.
	assert.True(t, tok.IsExpiringSoon(now.Add(time.Hour)))
}

func TestSessionJSONRoundTrip(t *testing.T) {
	s := validSession()
	tok := Token{
		Token:               "ghs_secret",
		ExpiresAt:           time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Permissions:         map[string]string{"issues": "write"},
		RepositorySelection: SelectionAll,
	}
	s.SetInstallation(s.Installations[1], tok)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var back Session
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, *s, back)
}
