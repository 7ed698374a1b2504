package credsvc

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/forgedesk/forgedesk/pkg/apiresponses"
	"github.com/forgedesk/forgedesk/pkg/audit"
	"github.com/forgedesk/forgedesk/pkg/metrics"
	"github.com/forgedesk/forgedesk/pkg/session"
	"github.com/forgedesk/forgedesk/pkg/system"
)

// SessionTokenHeader authenticates the installation-token and installations
// operations. The value is the user token obtained through the device flow;
// the service keeps no session state of its own.
const SessionTokenHeader = "X-Session-Token"

type handlers struct {
	log    *zap.SugaredLogger
	forge  *Forge
	signer *Signer
	audit  *audit.Service
}

// beginDeviceFlow starts a device authorization with the platform and relays
// the user code verbatim.
func (h *handlers) beginDeviceFlow(c *gin.Context) {
	log := system.GetReqLogger(c, h.log)

	auth, err := h.forge.DeviceCode(c.Request.Context())
	if err != nil {
		apiresponses.RespondBadGateway(c, "could not start a device flow with the platform")
		log.Errorw("Device flow start failed", "error", err)
		return
	}

	metrics.DeviceFlowsStarted.Inc()
	h.audit.Record(c.Request.Context(), audit.Event{Type: audit.EventDeviceFlowStarted})
	log.Infow("Device flow started", "userCode", auth.UserCode)
	apiresponses.RespondOK(c, auth)
}

type pollRequest struct {
	DeviceCode string `json:"device_code"`
}

type pollResponse struct {
	SessionToken  string                 `json:"session_token"`
	User          *session.User          `json:"user"`
	Installations []session.Installation `json:"installations"`
}

// poll relays one device-flow poll. The platform's OAuth error strings map to
// fixed status codes: 202 pending, 429 slow down, 410 expired, 403 denied.
// On success the service resolves the user profile and installation list with
// the fresh token so the client gets its whole session in one answer.
func (h *handlers) poll(c *gin.Context) {
	log := system.GetReqLogger(c, h.log)

	var req pollRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceCode == "" {
		apiresponses.RespondBadRequest(c, "device_code is required")
		return
	}

	userToken, err := h.forge.PollDeviceToken(c.Request.Context(), req.DeviceCode)
	if err != nil {
		switch {
		case errors.Is(err, errAuthorizationPending):
			metrics.PollsTotal.WithLabelValues("pending").Inc()
			apiresponses.RespondAccepted(c, gin.H{"message": "authorization pending"})
		case errors.Is(err, errSlowDown):
			metrics.PollsTotal.WithLabelValues("slow_down").Inc()
			apiresponses.RespondTooManyRequests(c, "slow down")
		case errors.Is(err, errExpiredToken):
			metrics.PollsTotal.WithLabelValues("expired").Inc()
			apiresponses.RespondGone(c, "device code expired")
		case errors.Is(err, errAccessDenied):
			metrics.PollsTotal.WithLabelValues("denied").Inc()
			h.audit.Record(c.Request.Context(), audit.Event{Type: audit.EventLoginDenied})
			apiresponses.RespondForbidden(c, "authorization was denied")
		default:
			metrics.PollsTotal.WithLabelValues("upstream_error").Inc()
			apiresponses.RespondBadGateway(c, "platform poll failed")
			log.Errorw("Device token poll failed", "error", err)
		}
		return
	}

	user, err := h.forge.User(c.Request.Context(), userToken)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("upstream_error").Inc()
		apiresponses.RespondBadGateway(c, "could not resolve the authorized user")
		log.Errorw("User lookup after poll failed", "error", err)
		return
	}
	installations, err := h.forge.UserInstallations(c.Request.Context(), userToken)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("upstream_error").Inc()
		apiresponses.RespondBadGateway(c, "could not list installations")
		log.Errorw("Installation list after poll failed", "error", err)
		return
	}

	metrics.PollsTotal.WithLabelValues("success").Inc()
	h.audit.Record(c.Request.Context(), audit.Event{
		Type:  audit.EventLoginCompleted,
		Actor: user.Login,
		Details: map[string]string{
			"installations": strconv.Itoa(len(installations)),
		},
	})
	log.Infow("Login completed", "user", user.Login, "installations", len(installations))
	apiresponses.RespondOK(c, pollResponse{
		SessionToken:  userToken,
		User:          user,
		Installations: installations,
	})
}

type installationTokenRequest struct {
	InstallationID int64 `json:"installation_id"`
}

// installationToken exchanges the caller's session for a scoped installation
// token. The session token authenticates the caller; a freshly minted app
// assertion authorizes the mint. The requested installation must appear in
// the caller's own installation list.
func (h *handlers) installationToken(c *gin.Context) {
	log := system.GetReqLogger(c, h.log)

	userToken := c.GetHeader(SessionTokenHeader)
	if userToken == "" {
		apiresponses.RespondUnauthorized(c, "")
		return
	}

	var req installationTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.InstallationID == 0 {
		apiresponses.RespondBadRequest(c, "installation_id is required")
		return
	}

	installations, err := h.forge.UserInstallations(c.Request.Context(), userToken)
	if err != nil {
		h.respondUpstreamAuthError(c, log, err, "could not verify installation access")
		metrics.InstallationTokensFailed.WithLabelValues("session").Inc()
		return
	}

	var owned *session.Installation
	for i := range installations {
		if installations[i].ID == req.InstallationID {
			owned = &installations[i]
			break
		}
	}
	if owned == nil {
		metrics.InstallationTokensFailed.WithLabelValues("not_authorized").Inc()
		h.audit.Record(c.Request.Context(), audit.Event{
			Type:           audit.EventTokenRejected,
			InstallationID: req.InstallationID,
		})
		apiresponses.RespondForbidden(c, "installation is not accessible to this user")
		return
	}

	assertion, err := h.signer.Mint()
	if err != nil {
		metrics.InstallationTokensFailed.WithLabelValues("assertion").Inc()
		apiresponses.RespondInternalError(c, "sign app assertion", err, log)
		return
	}

	token, err := h.forge.CreateInstallationToken(c.Request.Context(), assertion, req.InstallationID)
	if err != nil {
		metrics.InstallationTokensFailed.WithLabelValues("upstream").Inc()
		apiresponses.RespondBadGateway(c, "platform refused to mint an installation token")
		log.Errorw("Installation token mint failed", "installationID", req.InstallationID, "error", err)
		return
	}

	metrics.InstallationTokensIssued.Inc()
	h.audit.Record(c.Request.Context(), audit.Event{
		Type:           audit.EventTokenIssued,
		Actor:          owned.Account.Login,
		InstallationID: req.InstallationID,
	})
	log.Infow("Installation token issued", "installationID", req.InstallationID, "account", owned.Account.Login)
	apiresponses.RespondOK(c, token)
}

type installationsResponse struct {
	Installations []session.Installation `json:"installations"`
}

// installations re-reads the caller's installation list from the platform.
func (h *handlers) installations(c *gin.Context) {
	log := system.GetReqLogger(c, h.log)

	userToken := c.GetHeader(SessionTokenHeader)
	if userToken == "" {
		apiresponses.RespondUnauthorized(c, "")
		return
	}

	installations, err := h.forge.UserInstallations(c.Request.Context(), userToken)
	if err != nil {
		h.respondUpstreamAuthError(c, log, err, "could not list installations")
		return
	}

	metrics.InstallationListRefreshes.Inc()
	apiresponses.RespondOK(c, installationsResponse{Installations: installations})
}

// respondUpstreamAuthError folds an upstream failure into either 401 (the
// platform rejected the session token) or 502 (anything else).
func (h *handlers) respondUpstreamAuthError(c *gin.Context, log *zap.SugaredLogger, err error, message string) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		apiresponses.RespondUnauthorized(c, "session is no longer valid")
		return
	}
	apiresponses.RespondBadGateway(c, message)
	log.Errorw("Upstream call failed", "error", err)
}
