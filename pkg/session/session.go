// Package session defines the persisted authentication state of a ForgeDesk
// client: the user session, the installations visible to the user, and the
// short-lived installation token used for platform API calls.
package session

import (
	"errors"
	"fmt"
	"time"
)

// AccountType distinguishes personal accounts from organizations.
type AccountType string

const (
	AccountUser         AccountType = "user"
	AccountOrganization AccountType = "organization"
)

// RepositorySelection describes which repositories an installation covers.
type RepositorySelection string

const (
	SelectionAll      RepositorySelection = "all"
	SelectionSelected RepositorySelection = "selected"
)

// ExpiryWindow is the remaining lifetime below which an installation token is
// considered stale and should be re-exchanged before use.
const ExpiryWindow = 5 * time.Minute

// User is the profile snapshot captured at authentication time. It is not
// refreshed automatically.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Account is the owner of an installation.
type Account struct {
	Login     string      `json:"login"`
	AvatarURL string      `json:"avatar_url,omitempty"`
	Type      AccountType `json:"type"`
}

// Installation is one grant of the app onto an account or organization.
type Installation struct {
	ID                  int64               `json:"id"`
	Account             Account             `json:"account"`
	RepositorySelection RepositorySelection `json:"repository_selection"`
	Permissions         map[string]string   `json:"permissions,omitempty"`
}

// Token is a short-lived installation-scoped credential.
type Token struct {
	Token               string              `json:"token"`
	ExpiresAt           time.Time           `json:"expires_at"`
	Permissions         map[string]string   `json:"permissions,omitempty"`
	RepositorySelection RepositorySelection `json:"repository_selection,omitempty"`
}

// IsExpiringSoon reports whether fewer than ExpiryWindow remain before the
// token expires. Callers are expected to check this before using the token
// and re-exchange if it returns true.
func (t *Token) IsExpiringSoon(now time.Time) bool {
	return t.ExpiresAt.Sub(now) < ExpiryWindow
}

// Session is the root persisted entity. It is created on first successful
// device-flow completion, updated in place on installation switch, token
// refresh or installation list refresh, and deleted entirely on logout.
type Session struct {
	UserToken           string         `json:"user_token"`
	User                User           `json:"user"`
	Installations       []Installation `json:"installations"`
	CurrentInstallation *Installation  `json:"current_installation,omitempty"`
	InstallationToken   *Token         `json:"installation_token,omitempty"`
}

// FindInstallation returns the installation with the given id, or nil.
func (s *Session) FindInstallation(id int64) *Installation {
	for i := range s.Installations {
		if s.Installations[i].ID == id {
			return &s.Installations[i]
		}
	}
	return nil
}

// SetInstallation sets the current installation and its token together.
func (s *Session) SetInstallation(inst Installation, token Token) {
	s.CurrentInstallation = &inst
	s.InstallationToken = &token
}

// ClearInstallation clears the current installation and its token together.
func (s *Session) ClearInstallation() {
	s.CurrentInstallation = nil
	s.InstallationToken = nil
}

// Validate checks the session against its schema. A session failing
// validation must never be persisted, and a persisted record failing
// validation is treated as absent by the store.
func (s *Session) Validate() error {
	if s == nil {
		return errors.New("session is nil")
	}
	if s.UserToken == "" {
		return errors.New("session user token is empty")
	}
	if s.User.ID == 0 || s.User.Login == "" {
		return errors.New("session user profile is incomplete")
	}
	for i := range s.Installations {
		if err := s.Installations[i].Validate(); err != nil {
			return fmt.Errorf("installation %d: %w", i, err)
		}
	}
	// The current installation and its token must be set or cleared together.
	if (s.CurrentInstallation == nil) != (s.InstallationToken == nil) {
		return errors.New("current installation and installation token must be set together")
	}
	if s.CurrentInstallation != nil {
		if err := s.CurrentInstallation.Validate(); err != nil {
			return fmt.Errorf("current installation: %w", err)
		}
		if s.InstallationToken.Token == "" {
			return errors.New("installation token is empty")
		}
		if s.InstallationToken.ExpiresAt.IsZero() {
			return errors.New("installation token has no expiry")
		}
	}
	return nil
}

// Validate checks an installation record.
func (i *Installation) Validate() error {
	if i.ID == 0 {
		return errors.New("installation id is zero")
	}
	if i.Account.Login == "" {
		return errors.New("installation account login is empty")
	}
	switch i.RepositorySelection {
	case SelectionAll, SelectionSelected:
	default:
		return fmt.Errorf("invalid repository selection %q", i.RepositorySelection)
	}
	return nil
}

// DeviceAuthorization is the ephemeral state of one device-flow attempt. It
// is never written to durable storage; the device code is a secret used only
// for polling.
type DeviceAuthorization struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}
