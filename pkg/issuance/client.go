// Package issuance is the HTTP client for the ForgeDesk Credential Issuance
// Service. It speaks the four /auth endpoints and translates the service's
// poll status codes into typed outcomes for the login orchestrator.
package issuance

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/forgedesk/forgedesk/pkg/session"
)

// SessionTokenHeader carries the user session token on authenticated calls.
const SessionTokenHeader = "X-Session-Token"

// PollStatus is the category of a single device-flow poll response.
type PollStatus int

const (
	PollPending PollStatus = iota
	PollSlowDown
	PollExpired
	PollDenied
	PollSuccess
)

// PollOutcome is the decoded result of one poll. User and Installations are
// only populated when Status is PollSuccess.
type PollOutcome struct {
	Status        PollStatus
	SessionToken  string
	User          session.User
	Installations []session.Installation
}

// Client talks to the Credential Issuance Service.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

// Option configures a Client.
type Option func(*Client) error

// New builds a Client. A server URL is required.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		userAgent: "forgedesk",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == nil {
		return nil, errors.New("server is required")
	}
	return c, nil
}

// WithServer sets the issuance service base URL.
func WithServer(server string) Option {
	return func(c *Client) error {
		if server == "" {
			return errors.New("server is required")
		}
		parsed, err := url.Parse(server)
		if err != nil {
			return fmt.Errorf("invalid server: %w", err)
		}
		c.baseURL = parsed
		return nil
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.http.Timeout = timeout
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

// WithTLSConfig configures a custom CA bundle or disables verification.
func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		tlsConfig, err := loadTLSConfig(caFile, insecureSkipTLSVerify)
		if err != nil {
			return err
		}
		timeout := c.http.Timeout
		c.http = &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
			Timeout:   timeout,
		}
		return nil
	}
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure}
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// BeginDeviceFlow starts a device authorization with the platform.
func (c *Client) BeginDeviceFlow(ctx context.Context) (*session.DeviceAuthorization, error) {
	var auth session.DeviceAuthorization
	if err := c.post(ctx, "/auth/device", "", nil, &auth); err != nil {
		return nil, err
	}
	if auth.DeviceCode == "" || auth.UserCode == "" {
		return nil, errors.New("device authorization response is incomplete")
	}
	return &auth, nil
}

type pollRequest struct {
	DeviceCode string `json:"device_code"`
}

type pollResponse struct {
	SessionToken  string                 `json:"session_token"`
	User          session.User           `json:"user"`
	Installations []session.Installation `json:"installations"`
}

// Poll performs a single poll with the device code. Pending, slow-down,
// expired and denied responses are outcomes, not errors; only transport or
// protocol failures return an error.
func (c *Client) Poll(ctx context.Context, deviceCode string) (*PollOutcome, error) {
	resp, err := c.doRaw(ctx, "/auth/poll", "", pollRequest{DeviceCode: deviceCode})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return &PollOutcome{Status: PollPending}, nil
	case http.StatusTooManyRequests:
		return &PollOutcome{Status: PollSlowDown}, nil
	case http.StatusGone:
		return &PollOutcome{Status: PollExpired}, nil
	case http.StatusForbidden:
		return &PollOutcome{Status: PollDenied}, nil
	case http.StatusOK:
		var payload pollResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("failed to decode poll response: %w", err)
		}
		if payload.SessionToken == "" {
			return nil, errors.New("poll succeeded without a session token")
		}
		return &PollOutcome{
			Status:        PollSuccess,
			SessionToken:  payload.SessionToken,
			User:          payload.User,
			Installations: payload.Installations,
		}, nil
	default:
		return nil, decodeError(resp)
	}
}

type exchangeRequest struct {
	InstallationID int64 `json:"installation_id"`
}

// ExchangeInstallation trades an installation id for a scoped token.
func (c *Client) ExchangeInstallation(ctx context.Context, sessionToken string, installationID int64) (*session.Token, error) {
	var token session.Token
	if err := c.post(ctx, "/auth/installation-token", sessionToken, exchangeRequest{InstallationID: installationID}, &token); err != nil {
		return nil, err
	}
	if token.Token == "" {
		return nil, errors.New("installation token response is empty")
	}
	return &token, nil
}

type installationsResponse struct {
	Installations []session.Installation `json:"installations"`
}

// Installations fetches the caller's current installation list.
func (c *Client) Installations(ctx context.Context, sessionToken string) ([]session.Installation, error) {
	var payload installationsResponse
	if err := c.post(ctx, "/auth/installations", sessionToken, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Installations, nil
}

func (c *Client) post(ctx context.Context, endpoint, sessionToken string, body, out any) error {
	resp, err := c.doRaw(ctx, endpoint, sessionToken, body)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doRaw(ctx context.Context, endpoint, sessionToken string, body any) (*http.Response, error) {
	fullURL := *c.baseURL
	fullURL.Path = path.Join(fullURL.Path, endpoint)

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL.String(), payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if sessionToken != "" {
		req.Header.Set(SessionTokenHeader, sessionToken)
	}
	return c.http.Do(req)
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *apiError) Error() string {
	return e.Message
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var payload apiError
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return &payload
	}
	return fmt.Errorf("unexpected status %d from issuance service", resp.StatusCode)
}
