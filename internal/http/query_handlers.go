package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goatnetwork/goat-escrow/internal/auth"
	"github.com/goatnetwork/goat-escrow/internal/types"
)

func (hs *HTTPServer) handleHealth(c *gin.Context) {
	version := ""
	if cs, err := hs.engine.GetContractState(c.Request.Context()); err == nil {
		version = strconv.FormatUint(uint64(cs.ContractVersion), 10)
	}
	h := hs.monitor.Health(c.Request.Context(), version)
	status := http.StatusOK
	if !h.IsHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "data": h})
}

func (hs *HTTPServer) handleContractState(c *gin.Context) {
	cs, err := hs.engine.GetContractState(c.Request.Context())
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, cs)
}

func (hs *HTTPServer) handleBalance(c *gin.Context) {
	bal, err := hs.engine.GetBalance(c.Request.Context())
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, gin.H{"custody": hs.engine.Custody(), "balance": bal})
}

func (hs *HTTPServer) handleStats(c *gin.Context) {
	stats, err := hs.engine.GetStats(c.Request.Context())
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, stats)
}

func (hs *HTTPServer) handleAnalytics(c *gin.Context) {
	a, err := hs.monitor.Analytics(c.Request.Context())
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, a)
}

func (hs *HTTPServer) handleOperationStats(c *gin.Context) {
	stat, err := hs.monitor.OperationStats(c.Request.Context(), c.Param("op"))
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, stat)
}

func (hs *HTTPServer) handleAntiAbuseConfig(c *gin.Context) {
	cfg, err := hs.engine.GetAntiAbuseConfig(c.Request.Context())
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, cfg)
}

// handleLedger shows the token balance and recent movements of a holder.
func (hs *HTTPServer) handleLedger(c *gin.Context) {
	holder, err := types.NormalizeAddress(c.Param("holder"))
	if err != nil {
		hs.writeError(c, err)
		return
	}
	cs, err := hs.engine.GetContractState(c.Request.Context())
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	bal, err := hs.ledger.Balance(ctx, nil, cs.Token, holder)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	history, err := hs.ledger.History(ctx, cs.Token, holder, 50)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, LedgerResponse{Holder: holder, Balance: bal, History: history})
}

// handleFaucet mints test tokens. It is only routed when the faucet is
// enabled and the caller must be the admin.
func (hs *HTTPServer) handleFaucet(c *gin.Context) {
	var req FaucetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	to, err := types.NormalizeAddress(req.Address)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	cs, err := hs.engine.GetContractState(ctx)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	if err := auth.Require(ctx, cs.Admin); err != nil {
		hs.writeError(c, err)
		return
	}
	if err := hs.ledger.Mint(ctx, nil, cs.Token, to, req.Amount); err != nil {
		hs.writeError(c, err)
		return
	}
	hs.logger.Infof("Faucet minted %d to %s", req.Amount, to)
	ok(c, nil)
}
