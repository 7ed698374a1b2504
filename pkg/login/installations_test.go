package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgedesk/forgedesk/pkg/session"
)

func storeWithSession(t *testing.T, sess *session.Session) *memStore {
	t.Helper()
	store := &memStore{}
	require.NoError(t, store.Set(sess))
	store.sets = 0
	return store
}

func loggedInSession() *session.Session {
	return &session.Session{
		UserToken:     "user-token",
		User:          session.User{ID: 9, Login: "octo"},
		Installations: twoInstallations(),
	}
}

func TestSelectInstallation(t *testing.T) {
	client := &fakeClient{}
	store := storeWithSession(t, loggedInSession())
	mgr := NewManager(client, store, nil)

	require.NoError(t, mgr.SelectInstallation(context.Background(), 22))

	stored, err := store.Get()
	require.NoError(t, err)
	require.NotNil(t, stored.CurrentInstallation)
	assert.Equal(t, int64(22), stored.CurrentInstallation.ID)
	assert.Equal(t, "ghs_tok", stored.InstallationToken.Token)
}

func TestSelectInstallation_UnknownID(t *testing.T) {
	client := &fakeClient{}
	store := storeWithSession(t, loggedInSession())
	mgr := NewManager(client, store, nil)

	err := mgr.SelectInstallation(context.Background(), 404)
	var ferr *FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, CodeValidation, ferr.Code)
	assert.Empty(t, client.exchangeCalls)
	assert.Zero(t, store.sets)
}

func TestSelectInstallation_NotLoggedIn(t *testing.T) {
	mgr := NewManager(&fakeClient{}, &memStore{}, nil)
	err := mgr.SelectInstallation(context.Background(), 21)
	var ferr *FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, CodeValidation, ferr.Code)
}

func TestSelectInstallation_ExchangeFailureLeavesSessionUntouched(t *testing.T) {
	client := &fakeClient{exchangeErr: errors.New("502")}
	store := storeWithSession(t, loggedInSession())
	mgr := NewManager(client, store, nil)

	err := mgr.SelectInstallation(context.Background(), 21)
	var ferr *FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, CodeNetwork, ferr.Code)

	stored, err2 := store.Get()
	require.NoError(t, err2)
	assert.Nil(t, stored.CurrentInstallation)
	assert.Nil(t, stored.InstallationToken)
	assert.Zero(t, store.sets)
}

func TestSelectInstallation_SameIDTwice(t *testing.T) {
	client := &fakeClient{}
	store := storeWithSession(t, loggedInSession())
	mgr := NewManager(client, store, nil)

	require.NoError(t, mgr.SelectInstallation(context.Background(), 21))
	require.NoError(t, mgr.SelectInstallation(context.Background(), 21))

	stored, err := store.Get()
	require.NoError(t, err)
	require.NoError(t, stored.Validate())
	assert.Equal(t, int64(21), stored.CurrentInstallation.ID)
	assert.Equal(t, []int64{21, 21}, client.exchangeCalls)
}

func TestCheckInstallations_RefreshesList(t *testing.T) {
	refreshed := []session.Installation{
		{ID: 31, Account: session.Account{Login: "new-org", Type: session.AccountOrganization}, RepositorySelection: session.SelectionAll},
	}
	client := &fakeClient{installations: refreshed}
	store := storeWithSession(t, loggedInSession())
	mgr := NewManager(client, store, nil)

	got, err := mgr.CheckInstallations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refreshed, got)

	stored, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, refreshed, stored.Installations)
	// No installation was selected before, so the first one is auto-selected.
	require.NotNil(t, stored.CurrentInstallation)
	assert.Equal(t, int64(31), stored.CurrentInstallation.ID)
}

func TestCheckInstallations_AutoSelectFailureStillSaves(t *testing.T) {
	refreshed := []session.Installation{
		{ID: 31, Account: session.Account{Login: "new-org", Type: session.AccountOrganization}, RepositorySelection: session.SelectionAll},
	}
	client := &fakeClient{installations: refreshed, exchangeErr: errors.New("502")}
	store := storeWithSession(t, loggedInSession())
	mgr := NewManager(client, store, nil)

	got, err := mgr.CheckInstallations(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	stored, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, refreshed, stored.Installations)
	assert.Nil(t, stored.CurrentInstallation)
	assert.Nil(t, stored.InstallationToken)
}

func TestCheckInstallations_RevokedCurrentInstallationIsCleared(t *testing.T) {
	sess := loggedInSession()
	sess.SetInstallation(sess.Installations[0], session.Token{Token: "old", ExpiresAt: time.Now().Add(time.Hour)})
	refreshed := []session.Installation{sess.Installations[1]}
	client := &fakeClient{installations: refreshed}
	store := storeWithSession(t, sess)
	mgr := NewManager(client, store, nil)

	_, err := mgr.CheckInstallations(context.Background())
	require.NoError(t, err)

	stored, err := store.Get()
	require.NoError(t, err)
	// Installation 21 disappeared upstream; the remaining one is selected.
	require.NotNil(t, stored.CurrentInstallation)
	assert.Equal(t, int64(22), stored.CurrentInstallation.ID)
	assert.NotEqual(t, "old", stored.InstallationToken.Token)
}

func TestRefreshTokenIfStale_FreshTokenUntouched(t *testing.T) {
	sess := loggedInSession()
	sess.SetInstallation(sess.Installations[0], session.Token{Token: "fresh", ExpiresAt: time.Now().Add(time.Hour)})
	client := &fakeClient{}
	store := storeWithSession(t, sess)
	mgr := NewManager(client, store, nil)

	token, err := mgr.RefreshTokenIfStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.Token)
	assert.Empty(t, client.exchangeCalls)
}

func TestRefreshTokenIfStale_StaleTokenReExchanged(t *testing.T) {
	sess := loggedInSession()
	sess.SetInstallation(sess.Installations[0], session.Token{Token: "stale", ExpiresAt: time.Now().Add(time.Minute)})
	client := &fakeClient{}
	store := storeWithSession(t, sess)
	mgr := NewManager(client, store, nil)

	token, err := mgr.RefreshTokenIfStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghs_tok", token.Token)
	assert.Equal(t, []int64{21}, client.exchangeCalls)

	stored, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "ghs_tok", stored.InstallationToken.Token)
}

func TestRefreshTokenIfStale_NoSelection(t *testing.T) {
	mgr := NewManager(&fakeClient{}, storeWithSession(t, loggedInSession()), nil)
	_, err := mgr.RefreshTokenIfStale(context.Background())
	var ferr *FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, CodeValidation, ferr.Code)
}
