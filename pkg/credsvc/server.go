package credsvc

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/forgedesk/forgedesk/pkg/audit"
	"github.com/forgedesk/forgedesk/pkg/metrics"
	"github.com/forgedesk/forgedesk/pkg/ratelimit"
	"github.com/forgedesk/forgedesk/pkg/system"
	"github.com/forgedesk/forgedesk/pkg/version"
)

// Server is the credential issuance HTTP service.
type Server struct {
	gin     *gin.Engine
	config  Config
	limiter *ratelimit.IPRateLimiter
}

// NewServer wires the gin engine: access logging, panic recovery,
// request-scoped loggers, per-IP rate limiting on the auth group, and the
// operational endpoints.
func NewServer(log *zap.SugaredLogger, cfg Config, signer *Signer, forge *Forge, auditor *audit.Service) *Server {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log.Desugar(), time.RFC3339, true),
		ginzap.RecoveryWithZap(log.Desugar(), true),
		system.RequestLogger(log),
	)

	if cfg.Server.Debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
				AllowMethods: []string{"GET", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Authorization", "Content-Type", SessionTokenHeader},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	limiter := ratelimit.New(ratelimit.DefaultAuthConfig())

	h := &handlers{
		log:    log,
		forge:  forge,
		signer: signer,
		audit:  auditor,
	}

	auth := engine.Group("auth", limiter.Middleware())
	auth.POST("device", h.beginDeviceFlow)
	auth.POST("poll", h.poll)
	auth.POST("installation-token", h.installationToken)
	auth.POST("installations", h.installations)

	engine.GET("metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.GET("healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.GetBuildInfo())
	})

	return &Server{
		gin:     engine,
		config:  cfg,
		limiter: limiter,
	}
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Listen serves until the process exits. TLS is used when both cert and key
// are configured.
func (s *Server) Listen() error {
	defer s.limiter.Stop()
	if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
		return s.gin.RunTLS(s.config.Server.ListenAddress, s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
	}
	return s.gin.Run(s.config.Server.ListenAddress)
}
