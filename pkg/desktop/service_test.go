package desktop

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgedesk/forgedesk/pkg/issuance"
	"github.com/forgedesk/forgedesk/pkg/login"
	"github.com/forgedesk/forgedesk/pkg/session"
)

type fakeClient struct {
	pollIdx int
}

func (f *fakeClient) BeginDeviceFlow(context.Context) (*session.DeviceAuthorization, error) {
	return &session.DeviceAuthorization{
		DeviceCode:      "dev",
		UserCode:        "WXYZ-9876",
		VerificationURI: "https://forge.example/activate",
		ExpiresIn:       900,
		Interval:        5,
	}, nil
}

func (f *fakeClient) Poll(context.Context, string) (*issuance.PollOutcome, error) {
	f.pollIdx++
	if f.pollIdx < 2 {
		return &issuance.PollOutcome{Status: issuance.PollPending}, nil
	}
	return &issuance.PollOutcome{
		Status:       issuance.PollSuccess,
		SessionToken: "user-token",
		User:         session.User{ID: 3, Login: "octo"},
		Installations: []session.Installation{
			{ID: 41, Account: session.Account{Login: "octo", Type: session.AccountUser}, RepositorySelection: session.SelectionAll},
		},
	}, nil
}

func (f *fakeClient) ExchangeInstallation(_ context.Context, _ string, id int64) (*session.Token, error) {
	return &session.Token{Token: "ghs_tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeClient) Installations(context.Context, string) ([]session.Installation, error) {
	return nil, nil
}

type memStore struct {
	raw []byte
}

func (m *memStore) Get() (*session.Session, error) {
	if m.raw == nil {
		return nil, nil
	}
	var s session.Session
	if err := json.Unmarshal(m.raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memStore) Set(s *session.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.raw = raw
	return nil
}

func (m *memStore) Clear() error {
	m.raw = nil
	return nil
}

func (m *memStore) Available() bool { return false }

func TestServiceLoginSessionLogout(t *testing.T) {
	// The fake device flow answers pending once, then success. The clock is
	// substituted so the waits between polls return immediately.
	svc := New(&fakeClient{}, &memStore{}, nil, nil,
		login.WithClock(time.Now, func(context.Context, time.Duration) error { return nil }))

	sess, err := svc.Session()
	require.NoError(t, err)
	assert.Nil(t, sess)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sess, err = svc.Login(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)

	stored, err := svc.Session()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "octo", stored.User.Login)
	require.NotNil(t, stored.InstallationToken)

	token, err := svc.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ghs_tok", token.Token)

	assert.False(t, svc.StoreEncrypted())

	require.NoError(t, svc.Logout())
	stored, err = svc.Session()
	require.NoError(t, err)
	assert.Nil(t, stored)
}
