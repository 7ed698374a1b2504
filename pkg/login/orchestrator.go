// Package login drives the device-flow login state machine and manages the
// lifecycle of installation tokens. One orchestrator serves one login attempt
// at a time; concurrent attempts must be serialized by the caller.
package login

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/forgedesk/forgedesk/pkg/issuance"
	"github.com/forgedesk/forgedesk/pkg/session"
)

// State is the orchestrator's position in the device-flow state machine.
type State int

const (
	StateIdle State = iota
	StateAwaitingDeviceCode
	StateDisplayingCode
	StatePolling
	StateSuccess
	StateDenied
	StateExpired
	StateNetworkError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingDeviceCode:
		return "awaiting-device-code"
	case StateDisplayingCode:
		return "displaying-code"
	case StatePolling:
		return "polling"
	case StateSuccess:
		return "success"
	case StateDenied:
		return "denied"
	case StateExpired:
		return "expired"
	case StateNetworkError:
		return "network-error"
	default:
		return "unknown"
	}
}

// PollCeiling bounds a login attempt's polling phase by wall clock,
// independent of server cooperation.
const PollCeiling = 15 * time.Minute

const defaultPollInterval = 5 * time.Second

// IssuanceClient is the subset of the issuance service client the login flow
// needs.
type IssuanceClient interface {
	BeginDeviceFlow(ctx context.Context) (*session.DeviceAuthorization, error)
	Poll(ctx context.Context, deviceCode string) (*issuance.PollOutcome, error)
	ExchangeInstallation(ctx context.Context, sessionToken string, installationID int64) (*session.Token, error)
	Installations(ctx context.Context, sessionToken string) ([]session.Installation, error)
}

// SessionStore is the persistence contract the login flow writes through.
type SessionStore interface {
	Get() (*session.Session, error)
	Set(*session.Session) error
	Clear() error
	Available() bool
}

// Notifier receives the fire-and-forget signals emitted during login.
type Notifier interface {
	// UserCodeReady surfaces the code the user must enter and the URL to
	// enter it at. Opening the URL in a browser is the caller's choice.
	UserCodeReady(userCode, verificationURI string, expiresIn time.Duration)
	LoginSucceeded()
	LoginFailed(code Code, message string, retryable bool)
}

// NopNotifier discards all signals.
type NopNotifier struct{}

func (NopNotifier) UserCodeReady(string, string, time.Duration) {}
func (NopNotifier) LoginSucceeded()                            {}
func (NopNotifier) LoginFailed(Code, string, bool)             {}

// Orchestrator runs the device-flow state machine for one login attempt at a
// time.
type Orchestrator struct {
	client   IssuanceClient
	store    SessionStore
	installs *Manager
	notifier Notifier
	log      *zap.SugaredLogger

	ceiling time.Duration
	now     func() time.Time
	wait    func(ctx context.Context, d time.Duration) error

	state State
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithNotifier installs the notification sink.
func WithNotifier(n Notifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithPollCeiling overrides the wall-clock polling bound. Intended for tests.
func WithPollCeiling(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.ceiling = d }
}

// WithClock substitutes the time source and the wait between polls.
// Intended for tests.
func WithClock(now func() time.Time, wait func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
		o.wait = wait
	}
}

// NewOrchestrator builds an orchestrator bound to an issuance client and a
// session store.
func NewOrchestrator(client IssuanceClient, store SessionStore, log *zap.SugaredLogger, opts ...OrchestratorOption) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	o := &Orchestrator{
		client:   client,
		store:    store,
		installs: NewManager(client, store, log),
		notifier: NopNotifier{},
		log:      log,
		ceiling:  PollCeiling,
		now:      time.Now,
		wait:     sleep,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the machine's current state.
func (o *Orchestrator) State() State {
	return o.state
}

// Installs returns the installation token manager sharing this orchestrator's
// client and store.
func (o *Orchestrator) Installs() *Manager {
	return o.installs
}

// Login runs one complete device-flow attempt: obtain a device code, surface
// it, poll until a terminal response, auto-select an installation and persist
// the session. On return the machine is back in Idle. Cancelling ctx stops
// the loop at its next wait boundary without touching the store.
func (o *Orchestrator) Login(ctx context.Context) (*session.Session, error) {
	defer func() { o.state = StateIdle }()

	o.state = StateAwaitingDeviceCode
	auth, err := o.client.BeginDeviceFlow(ctx)
	if err != nil {
		return nil, o.fail(StateNetworkError, networkError("could not start device flow", err))
	}

	o.state = StateDisplayingCode
	o.notifier.UserCodeReady(auth.UserCode, auth.VerificationURI, time.Duration(auth.ExpiresIn)*time.Second)

	outcome, ferr := o.pollLoop(ctx, auth)
	if ferr != nil {
		return nil, ferr
	}
	if outcome == nil {
		// Cancelled by the caller: no terminal state, no notification.
		return nil, ctx.Err()
	}

	sess := &session.Session{
		UserToken:     outcome.SessionToken,
		User:          outcome.User,
		Installations: outcome.Installations,
	}

	// A session with no usable token is not authenticated-complete, so the
	// exchange happens before success is declared. The exchange itself is
	// best effort: its failure leaves the installation list intact.
	o.installs.autoSelect(ctx, sess)

	if err := o.store.Set(sess); err != nil {
		return nil, o.fail(StateNetworkError, &FlowError{
			Code: CodeValidation, Message: "could not persist session", cause: err,
		})
	}

	o.state = StateSuccess
	o.notifier.LoginSucceeded()
	return sess, nil
}

// pollLoop polls until a terminal response, the wall-clock ceiling, or
// cancellation. A nil outcome with nil error means ctx was cancelled.
func (o *Orchestrator) pollLoop(ctx context.Context, auth *session.DeviceAuthorization) (*issuance.PollOutcome, *FlowError) {
	o.state = StatePolling

	base := time.Duration(auth.Interval) * time.Second
	if base <= 0 {
		base = defaultPollInterval
	}
	interval := base
	started := o.now()

	for {
		if err := o.wait(ctx, interval); err != nil {
			return nil, nil
		}
		// The ceiling applies regardless of interval state, even if the most
		// recent response was still pending.
		if o.now().Sub(started) >= o.ceiling {
			return nil, o.fail(StateExpired, expiredError())
		}

		outcome, err := o.client.Poll(ctx, auth.DeviceCode)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, o.fail(StateNetworkError, networkError("poll failed", err))
		}

		switch outcome.Status {
		case issuance.PollPending:
			interval = base
		case issuance.PollSlowDown:
			interval *= 2
		case issuance.PollExpired:
			return nil, o.fail(StateExpired, expiredError())
		case issuance.PollDenied:
			return nil, o.fail(StateDenied, deniedError())
		case issuance.PollSuccess:
			return outcome, nil
		}
	}
}

func (o *Orchestrator) fail(state State, ferr *FlowError) *FlowError {
	o.state = state
	o.log.Warnw("Login attempt failed", "state", state.String(), "code", string(ferr.Code), "error", ferr.Error())
	o.notifier.LoginFailed(ferr.Code, ferr.Message, ferr.Retryable)
	return ferr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
