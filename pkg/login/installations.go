package login

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forgedesk/forgedesk/pkg/session"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// Manager selects among the installations visible to the user and exchanges
// them for scoped tokens.
type Manager struct {
	client IssuanceClient
	store  SessionStore
	log    *zap.SugaredLogger
}

// NewManager builds an installation token manager.
func NewManager(client IssuanceClient, store SessionStore, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{client: client, store: store, log: log}
}

// SelectInstallation exchanges the given installation for a scoped token and
// persists the updated session. The installation and its token are set
// atomically; on any failure the stored session is left unmodified.
func (m *Manager) SelectInstallation(ctx context.Context, installationID int64) error {
	sess, err := m.store.Get()
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil || sess.UserToken == "" {
		return validationError("not logged in")
	}
	inst := sess.FindInstallation(installationID)
	if inst == nil {
		return validationError(fmt.Sprintf("installation %d is not available to this user", installationID))
	}

	token, err := m.client.ExchangeInstallation(ctx, sess.UserToken, installationID)
	if err != nil {
		return networkError("installation token exchange failed", err)
	}

	sess.SetInstallation(*inst, *token)
	if err := m.store.Set(sess); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// CheckInstallations refreshes the installation list from the issuance
// service and persists it. If the session has no current installation
// afterwards, the first installation is auto-selected best effort: an
// exchange failure is logged, not returned, and the refreshed list is still
// saved.
func (m *Manager) CheckInstallations(ctx context.Context) ([]session.Installation, error) {
	sess, err := m.store.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil || sess.UserToken == "" {
		return nil, validationError("not logged in")
	}

	installations, err := m.client.Installations(ctx, sess.UserToken)
	if err != nil {
		return nil, networkError("failed to refresh installations", err)
	}
	sess.Installations = installations

	// An installation revoked upstream takes its token with it.
	if sess.CurrentInstallation != nil && sess.FindInstallation(sess.CurrentInstallation.ID) == nil {
		m.log.Infow("Current installation no longer available, clearing it",
			"installation", sess.CurrentInstallation.ID)
		sess.ClearInstallation()
	}

	m.autoSelect(ctx, sess)

	if err := m.store.Set(sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	return installations, nil
}

// RefreshTokenIfStale re-exchanges the current installation when its token
// has fewer than session.ExpiryWindow remaining. It returns the token to use
// for API calls.
func (m *Manager) RefreshTokenIfStale(ctx context.Context) (*session.Token, error) {
	sess, err := m.store.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil || sess.CurrentInstallation == nil || sess.InstallationToken == nil {
		return nil, validationError("no installation selected")
	}
	if !sess.InstallationToken.IsExpiringSoon(timeNow()) {
		return sess.InstallationToken, nil
	}

	token, err := m.client.ExchangeInstallation(ctx, sess.UserToken, sess.CurrentInstallation.ID)
	if err != nil {
		return nil, networkError("installation token refresh failed", err)
	}
	sess.InstallationToken = token
	if err := m.store.Set(sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	return token, nil
}

// autoSelect picks the first installation when none is selected. Best
// effort by design: a failed exchange leaves the session without a current
// installation and the caller proceeds regardless.
func (m *Manager) autoSelect(ctx context.Context, sess *session.Session) {
	if sess.CurrentInstallation != nil || len(sess.Installations) == 0 {
		return
	}
	inst := sess.Installations[0]
	token, err := m.client.ExchangeInstallation(ctx, sess.UserToken, inst.ID)
	if err != nil {
		m.log.Warnw("Automatic installation selection failed, continuing without a token",
			"installation", inst.ID, "error", err)
		return
	}
	sess.SetInstallation(inst, *token)
}
