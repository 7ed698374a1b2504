package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgedesk/forgedesk/pkg/desktop"
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
			{ID: 42, Account: session.Account{Login: "acme", Type: session.AccountOrganization}, RepositorySelection: session.SelectionSelected},
		},
	}, nil
}

func (f *fakeClient) ExchangeInstallation(_ context.Context, _ string, id int64) (*session.Token, error) {
	return &session.Token{Token: "ghs_tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeClient) Installations(context.Context, string) ([]session.Installation, error) {
	return []session.Installation{
		{ID: 41, Account: session.Account{Login: "octo", Type: session.AccountUser}, RepositorySelection: session.SelectionAll},
	}, nil
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

func (m *memStore) Available() bool { return true }

// newTestRoot builds the command tree against an in-memory auth service that
// completes the device flow after one pending poll.
func newTestRoot(t *testing.T) (*cobra.Command, *memStore, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	store := &memStore{}

	root := NewRootCommand(Config{
		ConfigPath:   filepath.Join(t.TempDir(), "config.yaml"),
		OutputWriter: out,
	})

	rt, ok := root.Context().Value(runtimeKey{}).(*runtimeState)
	require.True(t, ok)
	rt.serviceFactory = func(rt *runtimeState) (*desktop.Service, error) {
		notifier := &printNotifier{w: rt.Writer()}
		return desktop.New(&fakeClient{}, store, notifier, nil,
			login.WithClock(time.Now, func(context.Context, time.Duration) error { return nil })), nil
	}
	return root, store, out
}

func run(t *testing.T, root *cobra.Command, args ...string) error {
	t.Helper()
	// A server override keeps the config file optional in tests.
	root.SetArgs(append(args, "--server", "https://auth.forgedesk.example"))
	return root.Execute()
}

func TestVersionCommand(t *testing.T) {
	root, _, out := newTestRoot(t)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "fdctl")
}

func TestVersionCommandJSON(t *testing.T) {
	root, _, out := newTestRoot(t)
	root.SetArgs([]string{"version", "-o", "json"})
	require.NoError(t, root.Execute())

	var info map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "dev", info["version"])
}

func TestStatusNotLoggedIn(t *testing.T) {
	root, _, out := newTestRoot(t)
	require.NoError(t, run(t, root, "status"))
	assert.Contains(t, out.String(), "Not logged in.")
}

func TestLoginFlow(t *testing.T) {
	root, store, out := newTestRoot(t)
	require.NoError(t, run(t, root, "login"))

	assert.Contains(t, out.String(), "WXYZ-9876")
	assert.Contains(t, out.String(), "https://forge.example/activate")
	assert.Contains(t, out.String(), "Logged in as octo.")
	assert.Contains(t, out.String(), "Selected installation 41")

	sess, err := store.Get()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "user-token", sess.UserToken)
}

func TestInstallationsAfterLogin(t *testing.T) {
	root, _, out := newTestRoot(t)
	require.NoError(t, run(t, root, "login"))
	out.Reset()

	require.NoError(t, run(t, root, "installations"))
	assert.Contains(t, out.String(), "octo")
	assert.Contains(t, out.String(), "acme")
	assert.Contains(t, out.String(), "*")
}

func TestInstallationsWithoutLogin(t *testing.T) {
	root, _, _ := newTestRoot(t)
	require.Error(t, run(t, root, "installations"))
}

func TestSelectCommand(t *testing.T) {
	root, store, out := newTestRoot(t)
	require.NoError(t, run(t, root, "login"))
	out.Reset()

	require.NoError(t, run(t, root, "select", "42"))
	assert.Contains(t, out.String(), "Selected installation 42.")

	sess, err := store.Get()
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentInstallation)
	assert.EqualValues(t, 42, sess.CurrentInstallation.ID)
}

func TestSelectRejectsBadID(t *testing.T) {
	root, _, _ := newTestRoot(t)
	require.Error(t, run(t, root, "select", "not-a-number"))
}

func TestTokenCommand(t *testing.T) {
	root, _, out := newTestRoot(t)
	require.NoError(t, run(t, root, "login"))
	out.Reset()

	require.NoError(t, run(t, root, "token"))
	assert.Contains(t, out.String(), "ghs_tok")
}

func TestLogoutCommand(t *testing.T) {
	root, store, out := newTestRoot(t)
	require.NoError(t, run(t, root, "login"))
	out.Reset()

	require.NoError(t, run(t, root, "logout"))
	assert.Contains(t, out.String(), "Logged out.")

	sess, err := store.Get()
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestConfigInitAndView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	out := &bytes.Buffer{}
	root := NewRootCommand(Config{ConfigPath: path, OutputWriter: out})

	root.SetArgs([]string{"config", "init", "--server", "https://auth.forgedesk.example"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), path)

	out.Reset()
	root.SetArgs([]string{"config", "view"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "https://auth.forgedesk.example")

	// A second init without --force refuses to clobber.
	root.SetArgs([]string{"config", "init", "--server", "https://other.example"})
	require.Error(t, root.Execute())
}

func TestUnknownCommand(t *testing.T) {
	root, _, _ := newTestRoot(t)
	root.SetArgs([]string{"definitely-not-a-command"})
	require.Error(t, root.Execute())
}
