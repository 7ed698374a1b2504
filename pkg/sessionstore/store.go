// Package sessionstore persists the single ForgeDesk user session at rest.
// The primary backend is the operating system keychain; when no keychain is
// available the store degrades to a plain file under the user config dir and
// reports the degradation through Available so callers can warn.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	"github.com/forgedesk/forgedesk/pkg/session"
)

const (
	// Service is the keychain service name under which the record is filed.
	Service = "forgedesk"
	// RecordKey is the fixed name of the single session record.
	RecordKey = "auth"

	probeKey        = "availability-probe"
	fallbackDirName = "forgedesk"
	fallbackFile    = "session.json"
)

// Keychain abstracts the OS keychain so tests can substitute their own.
type Keychain interface {
	Set(service, user, secret string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

type systemKeychain struct{}

func (systemKeychain) Set(service, user, secret string) error { return keyring.Set(service, user, secret) }
func (systemKeychain) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}
func (systemKeychain) Delete(service, user string) error { return keyring.Delete(service, user) }

// errNotFound normalizes the absent-record signal across backends.
var errNotFound = errors.New("session record not found")

// record is the on-disk envelope. The session field is null after logout so
// the record shape stays stable across clears.
type record struct {
	Session *session.Session `json:"session"`
}

// Store holds at most one user session. It has no internal locking: writes
// only ever originate from the single active login/selection flow, and the
// last writer wins.
type Store struct {
	log          *zap.SugaredLogger
	keychain     Keychain
	available    bool
	fallbackPath string
}

// Option configures a Store.
type Option func(*Store)

// WithKeychain substitutes the keychain backend. Intended for tests.
func WithKeychain(k Keychain) Option {
	return func(s *Store) { s.keychain = k }
}

// WithFallbackPath overrides the degraded-mode file location.
func WithFallbackPath(path string) Option {
	return func(s *Store) { s.fallbackPath = path }
}

// New probes the keychain once and returns a store bound to whichever
// backend is usable. The store never refuses to operate: when the keychain
// is unavailable it falls back to an unencrypted file and Available reports
// false.
func New(log *zap.SugaredLogger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Store{log: log, keychain: systemKeychain{}, fallbackPath: defaultFallbackPath()}
	for _, opt := range opts {
		opt(s)
	}
	s.available = s.probe()
	if !s.available {
		s.log.Warnw("OS keychain unavailable, session will be stored unencrypted",
			"path", s.fallbackPath)
	}
	return s
}

// Available reports whether the session is held under platform encryption.
func (s *Store) Available() bool {
	return s.available
}

func (s *Store) probe() bool {
	if err := s.keychain.Set(Service, probeKey, "ok"); err != nil {
		return false
	}
	_ = s.keychain.Delete(Service, probeKey)
	return true
}

// Get returns the stored session, or nil when none is stored. A structurally
// invalid record is logged, deleted to avoid repeated failure, and treated
// as absent; Get never fails the caller over bad stored data.
func (s *Store) Get() (*session.Session, error) {
	raw, err := s.read()
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.log.Warnw("Discarding malformed session record", "error", err)
		_ = s.delete()
		return nil, nil
	}
	if rec.Session == nil {
		return nil, nil
	}
	if err := rec.Session.Validate(); err != nil {
		s.log.Warnw("Discarding invalid session record", "error", err)
		_ = s.delete()
		return nil, nil
	}
	return rec.Session, nil
}

// Set validates and persists the session. An invalid session is rejected and
// nothing is written; the store never holds a half-valid session.
func (s *Store) Set(sess *session.Session) error {
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid session: %w", err)
	}
	raw, err := json.Marshal(record{Session: sess})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.write(raw)
}

// Clear removes the stored session. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	if err := s.delete(); err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	return nil
}

func (s *Store) read() ([]byte, error) {
	if s.available {
		secret, err := s.keychain.Get(Service, RecordKey)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, errNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read session from keychain: %w", err)
		}
		return []byte(secret), nil
	}
	content, err := os.ReadFile(s.fallbackPath)
	if os.IsNotExist(err) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	return content, nil
}

func (s *Store) write(raw []byte) error {
	if s.available {
		if err := s.keychain.Set(Service, RecordKey, string(raw)); err != nil {
			return fmt.Errorf("failed to write session to keychain: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func (s *Store) delete() error {
	if s.available {
		err := s.keychain.Delete(Service, RecordKey)
		if errors.Is(err, keyring.ErrNotFound) {
			return errNotFound
		}
		return err
	}
	err := os.Remove(s.fallbackPath)
	if os.IsNotExist(err) {
		return errNotFound
	}
	return err
}

func defaultFallbackPath() string {
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, fallbackDirName, fallbackFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+fallbackDirName, fallbackFile)
}
