package credsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forgedesk/forgedesk/pkg/metrics"
	"github.com/forgedesk/forgedesk/pkg/session"
)

// Poll outcome sentinels, translated from the platform's OAuth error strings.
var (
	errAuthorizationPending = errors.New("authorization pending")
	errSlowDown             = errors.New("slow down")
	errExpiredToken         = errors.New("device code expired")
	errAccessDenied         = errors.New("access denied")
)

const upstreamTimeout = 10 * time.Second

// StatusError reports a non-2xx answer from the platform, preserving the
// status code so handlers can distinguish a rejected credential from a
// platform outage.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform returned %d for %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// Forge is the service's client for the code-hosting platform: the OAuth
// host for the device flow and the API host for user, installation and
// token-minting calls.
type Forge struct {
	oauthBase string
	apiBase   string
	clientID  string
	http      *http.Client
}

// NewForge builds the upstream client from the service configuration.
func NewForge(cfg UpstreamConfig, clientID string) *Forge {
	return &Forge{
		oauthBase: strings.TrimRight(cfg.OAuthBaseURL, "/"),
		apiBase:   strings.TrimRight(cfg.APIBaseURL, "/"),
		clientID:  clientID,
		http:      &http.Client{Timeout: upstreamTimeout},
	}
}

// DeviceCode begins a device flow with the platform.
func (f *Forge) DeviceCode(ctx context.Context) (*session.DeviceAuthorization, error) {
	values := url.Values{}
	values.Set("client_id", f.clientID)

	var auth session.DeviceAuthorization
	if err := f.postForm(ctx, "/login/device/code", values, &auth); err != nil {
		return nil, err
	}
	if auth.DeviceCode == "" || auth.UserCode == "" {
		return nil, errors.New("platform returned an incomplete device authorization")
	}
	return &auth, nil
}

type deviceTokenResponse struct {
	AccessToken string `json:"access_token"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// PollDeviceToken performs one poll of the device-flow token endpoint. The
// pending/slow-down/expired/denied signals come back as the sentinel errors
// above; any other error is a transport or protocol failure.
func (f *Forge) PollDeviceToken(ctx context.Context, deviceCode string) (string, error) {
	values := url.Values{}
	values.Set("client_id", f.clientID)
	values.Set("device_code", deviceCode)
	values.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")

	var payload deviceTokenResponse
	if err := f.postForm(ctx, "/login/oauth/access_token", values, &payload); err != nil {
		return "", err
	}
	if payload.Error != "" {
		switch payload.Error {
		case "authorization_pending":
			return "", errAuthorizationPending
		case "slow_down":
			return "", errSlowDown
		case "expired_token", "incorrect_device_code":
			return "", errExpiredToken
		case "access_denied":
			return "", errAccessDenied
		default:
			return "", fmt.Errorf("device token error: %s", payload.Error)
		}
	}
	if payload.AccessToken == "" {
		return "", errors.New("platform returned neither a token nor an error")
	}
	return payload.AccessToken, nil
}

// User resolves the profile of the user the token belongs to.
func (f *Forge) User(ctx context.Context, userToken string) (*session.User, error) {
	var user session.User
	if err := f.apiCall(ctx, http.MethodGet, "/user", "token "+userToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type forgeAccount struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	Type      string `json:"type"`
}

type forgeInstallation struct {
	ID                  int64             `json:"id"`
	Account             forgeAccount      `json:"account"`
	RepositorySelection string            `json:"repository_selection"`
	Permissions         map[string]string `json:"permissions"`
}

type userInstallationsResponse struct {
	Installations []forgeInstallation `json:"installations"`
}

// UserInstallations lists the app installations the user can access.
func (f *Forge) UserInstallations(ctx context.Context, userToken string) ([]session.Installation, error) {
	var payload userInstallationsResponse
	if err := f.apiCall(ctx, http.MethodGet, "/user/installations", "token "+userToken, nil, &payload); err != nil {
		return nil, err
	}
	installations := make([]session.Installation, 0, len(payload.Installations))
	for _, inst := range payload.Installations {
		installations = append(installations, session.Installation{
			ID: inst.ID,
			Account: session.Account{
				Login:     inst.Account.Login,
				AvatarURL: inst.Account.AvatarURL,
				Type:      normalizeAccountType(inst.Account.Type),
			},
			RepositorySelection: session.RepositorySelection(inst.RepositorySelection),
			Permissions:         inst.Permissions,
		})
	}
	return installations, nil
}

// CreateInstallationToken mints a scoped token for the installation,
// authenticated with a fresh app assertion.
func (f *Forge) CreateInstallationToken(ctx context.Context, assertion string, installationID int64) (*session.Token, error) {
	endpoint := fmt.Sprintf("/app/installations/%d/access_tokens", installationID)
	var token session.Token
	if err := f.apiCall(ctx, http.MethodPost, endpoint, "Bearer "+assertion, nil, &token); err != nil {
		return nil, err
	}
	if token.Token == "" {
		return nil, errors.New("platform returned an empty installation token")
	}
	return &token, nil
}

func normalizeAccountType(t string) session.AccountType {
	if strings.EqualFold(t, "organization") {
		return session.AccountOrganization
	}
	return session.AccountUser
}

func (f *Forge) postForm(ctx context.Context, endpoint string, values url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.oauthBase+endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return f.do(req, endpoint, out)
}

func (f *Forge) apiCall(ctx context.Context, method, endpoint, authorization string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, f.apiBase+endpoint, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", authorization)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return f.do(req, endpoint, out)
}

func (f *Forge) do(req *http.Request, endpoint string, out any) error {
	started := time.Now()
	resp, err := f.http.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	if err != nil {
		return fmt.Errorf("platform request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode platform response: %w", err)
	}
	return nil
}
