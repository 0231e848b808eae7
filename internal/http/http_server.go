package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goatnetwork/goat-escrow/internal/auth"
	"github.com/goatnetwork/goat-escrow/internal/config"
	"github.com/goatnetwork/goat-escrow/internal/escrow"
	"github.com/goatnetwork/goat-escrow/internal/metrics"
	"github.com/goatnetwork/goat-escrow/internal/token"
	"github.com/goatnetwork/goat-escrow/internal/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-Id"

type HTTPServer struct {
	engine  *escrow.Engine
	ledger  *token.Ledger
	monitor *metrics.Monitor

	// mutating calls are handed to the engine one at a time
	mu sync.Mutex

	logger *log.Entry
}

func NewHTTPServer(engine *escrow.Engine, ledger *token.Ledger, monitor *metrics.Monitor) *HTTPServer {
	return &HTTPServer{
		engine:  engine,
		ledger:  ledger,
		monitor: monitor,
		logger:  log.WithFields(log.Fields{"module": "http"}),
	}
}

func (hs *HTTPServer) Start(ctx context.Context) {
	if config.AppConfig.JwtSecret == "" {
		hs.logger.Warn("JWT_SECRET is empty, every bearer token will be rejected")
	}
	srv := &http.Server{
		Addr:              ":" + config.AppConfig.HTTPPort,
		Handler:           hs.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			hs.logger.Errorf("HTTP server shutdown: %v", err)
		}
	}()

	hs.logger.Infof("HTTP server is running on port %s", config.AppConfig.HTTPPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		hs.logger.Fatalf("Failed to start HTTP server: %v", err)
	}
	hs.logger.Info("HTTP server stopped")
}

func (hs *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), hs.requestID(), hs.authenticate())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", hs.handleHealth)
	v1.GET("/state", hs.handleContractState)
	v1.GET("/balance", hs.handleBalance)
	v1.GET("/stats", hs.handleStats)
	v1.GET("/analytics", hs.handleAnalytics)
	v1.GET("/operations/:op", hs.handleOperationStats)
	v1.GET("/ledger/:holder", hs.handleLedger)
	v1.GET("/anti-abuse", hs.handleAntiAbuseConfig)

	v1.POST("/init", hs.serialized(hs.handleInit))

	v1.GET("/bounties", hs.handleListBounties)
	v1.POST("/bounties", hs.serialized(hs.handleLock))
	v1.POST("/bounties/batch", hs.serialized(hs.handleBatchLock))
	v1.POST("/releases/batch", hs.serialized(hs.handleBatchRelease))
	v1.GET("/bounties/:id", hs.handleGetBounty)
	v1.POST("/bounties/:id/release", hs.serialized(hs.handleRelease))
	v1.POST("/bounties/:id/refund", hs.serialized(hs.handleRefund))
	v1.POST("/bounties/:id/refund-approval", hs.serialized(hs.handleApproveRefund))
	v1.GET("/bounties/:id/refund-approval", hs.handleGetRefundApproval)
	v1.GET("/bounties/:id/refund-eligibility", hs.handleRefundEligibility)
	v1.GET("/bounties/:id/release-history", hs.handleReleaseHistory)

	v1.POST("/bounties/:id/schedules", hs.serialized(hs.handleCreateSchedule))
	v1.GET("/bounties/:id/schedules", hs.handleListSchedules)
	v1.GET("/bounties/:id/schedules/:sid", hs.handleGetSchedule)
	v1.POST("/bounties/:id/schedules/:sid/release", hs.serialized(hs.handleReleaseScheduleAutomatic))
	v1.POST("/bounties/:id/schedules/:sid/release-manual", hs.serialized(hs.handleReleaseScheduleManual))

	admin := v1.Group("/admin")
	admin.POST("/admin", hs.serialized(hs.handleUpdateAdmin))
	admin.POST("/payout-key", hs.serialized(hs.handleUpdatePayoutKey))
	admin.POST("/config-limits", hs.serialized(hs.handleUpdateConfigLimits))
	admin.POST("/fee-config", hs.serialized(hs.handleUpdateFeeConfig))
	admin.POST("/time-lock", hs.serialized(hs.handleSetTimeLock))
	admin.GET("/actions", hs.handlePendingActions)
	admin.GET("/actions/:aid", hs.handleGetAction)
	admin.POST("/actions/:aid/execute", hs.serialized(hs.handleExecuteAction))
	admin.DELETE("/actions/:aid", hs.serialized(hs.handleCancelAction))
	admin.POST("/pause", hs.serialized(hs.handlePause))
	admin.POST("/unpause", hs.serialized(hs.handleUnpause))
	admin.POST("/emergency-withdraw", hs.serialized(hs.handleEmergencyWithdraw))
	admin.PUT("/anti-abuse", hs.serialized(hs.handleSetAntiAbuse))
	admin.POST("/whitelist", hs.serialized(hs.handleSetWhitelist))

	if config.AppConfig.EnableFaucet {
		v1.POST("/faucet", hs.serialized(hs.handleFaucet))
	}
	return r
}

func (hs *HTTPServer) serialized(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		hs.mu.Lock()
		defer hs.mu.Unlock()
		h(c)
	}
}

func (hs *HTTPServer) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		start := time.Now()
		c.Next()
		hs.logger.WithFields(log.Fields{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
		}).Debug("HTTP request")
	}
}

// authenticate turns a valid bearer token into a signer on the request
// context. Requests without a token proceed unsigned.
func (hs *HTTPServer) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || config.AppConfig.JwtSecret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization"})
			return
		}
		address, err := auth.ParseToken(config.AppConfig.JwtSecret, raw)
		if err != nil {
			hs.logger.Debugf("Rejected bearer token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Request = c.Request.WithContext(auth.WithSigners(c.Request.Context(), address))
		c.Next()
	}
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// writeError maps escrow errors onto their status and numeric code.
func (hs *HTTPServer) writeError(c *gin.Context, err error) {
	var ee *types.Error
	if errors.As(err, &ee) {
		c.JSON(ee.HTTPStatus(), gin.H{"code": ee.Code, "error": ee.Name})
		return
	}
	hs.logger.Errorf("Request %s failed: %v", c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return v, true
}
