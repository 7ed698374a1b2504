// Package desktop exposes the auth core to the rest of the desktop
// application as a single dependency-injected service object. It is the only
// surface UI code talks to: login, session lookup, installation selection and
// logout, plus the fire-and-forget login notifications.
package desktop

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/forgedesk/forgedesk/pkg/login"
	"github.com/forgedesk/forgedesk/pkg/session"
)

// Service wires the login orchestrator, installation manager and session
// store behind the local request/response channel. Construct one per
// application process and pass it by reference; its lifecycle is tied to
// application startup and shutdown.
type Service struct {
	orch  *login.Orchestrator
	store login.SessionStore
	log   *zap.SugaredLogger
}

// New builds the desktop auth service. Extra orchestrator options are passed
// through, mainly so tests can substitute the clock.
func New(client login.IssuanceClient, store login.SessionStore, notifier login.Notifier, log *zap.SugaredLogger, extra ...login.OrchestratorOption) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	opts := []login.OrchestratorOption{}
	if notifier != nil {
		opts = append(opts, login.WithNotifier(notifier))
	}
	opts = append(opts, extra...)
	return &Service{
		orch:  login.NewOrchestrator(client, store, log, opts...),
		store: store,
		log:   log,
	}
}

// Login runs one device-flow login attempt. Callers must not run two
// attempts concurrently; serialize at the UI boundary.
func (s *Service) Login(ctx context.Context) (*session.Session, error) {
	return s.orch.Login(ctx)
}

// Session returns the stored session, or nil when logged out.
func (s *Service) Session() (*session.Session, error) {
	return s.store.Get()
}

// SelectInstallation exchanges the given installation for a token and
// persists the result. Failures are surfaced synchronously to the caller.
func (s *Service) SelectInstallation(ctx context.Context, installationID int64) error {
	return s.orch.Installs().SelectInstallation(ctx, installationID)
}

// CheckInstallations refreshes the installation list, auto-selecting the
// first installation if none is current.
func (s *Service) CheckInstallations(ctx context.Context) ([]session.Installation, error) {
	return s.orch.Installs().CheckInstallations(ctx)
}

// AccessToken returns the installation token to use for platform API calls,
// re-exchanging it first when it is about to expire.
func (s *Service) AccessToken(ctx context.Context) (*session.Token, error) {
	return s.orch.Installs().RefreshTokenIfStale(ctx)
}

// Logout deletes the stored session.
func (s *Service) Logout() error {
	return s.store.Clear()
}

// StoreEncrypted reports whether the session is held under platform
// encryption. When false the application should warn but keep working.
func (s *Service) StoreEncrypted() bool {
	return s.store.Available()
}

// OpenBrowser opens the verification URL in the user's browser. The
// orchestrator never calls this itself; surfacing the code and opening the
// browser are separate caller choices.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if cmd == nil {
		return errors.New("no browser command available")
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
