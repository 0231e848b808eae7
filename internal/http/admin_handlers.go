package http

import (
	"github.com/gin-gonic/gin"
	"github.com/goatnetwork/goat-escrow/internal/antiabuse"
	"github.com/goatnetwork/goat-escrow/internal/types"
)

func actionResult(c *gin.Context, id uint64) {
	ok(c, ActionResponse{ActionID: id, Queued: id != 0})
}

func (hs *HTTPServer) handleUpdateAdmin(c *gin.Context) {
	var req AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	id, err := hs.engine.UpdateAdmin(c.Request.Context(), req.Address)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	actionResult(c, id)
}

func (hs *HTTPServer) handleUpdatePayoutKey(c *gin.Context) {
	var req AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	id, err := hs.engine.UpdatePayoutKey(c.Request.Context(), req.Address)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	actionResult(c, id)
}

func (hs *HTTPServer) handleUpdateConfigLimits(c *gin.Context) {
	var req types.ConfigLimitsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	id, err := hs.engine.UpdateConfigLimits(c.Request.Context(), req)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	actionResult(c, id)
}

func (hs *HTTPServer) handleUpdateFeeConfig(c *gin.Context) {
	var req types.FeeConfigUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	id, err := hs.engine.UpdateFeeConfig(c.Request.Context(), req)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	actionResult(c, id)
}

func (hs *HTTPServer) handleSetTimeLock(c *gin.Context) {
	var req TimeLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	if err := hs.engine.SetTimeLockDuration(c.Request.Context(), req.Seconds); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handlePendingActions(c *gin.Context) {
	actions, err := hs.engine.GetPendingAdminActions(c.Request.Context())
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, actions)
}

func (hs *HTTPServer) handleGetAction(c *gin.Context) {
	id, valid := uintParam(c, "aid")
	if !valid {
		return
	}
	action, err := hs.engine.GetAdminAction(c.Request.Context(), id)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, action)
}

func (hs *HTTPServer) handleExecuteAction(c *gin.Context) {
	id, valid := uintParam(c, "aid")
	if !valid {
		return
	}
	if err := hs.engine.ExecuteAdminAction(c.Request.Context(), id); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handleCancelAction(c *gin.Context) {
	id, valid := uintParam(c, "aid")
	if !valid {
		return
	}
	if err := hs.engine.CancelAdminAction(c.Request.Context(), id); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handlePause(c *gin.Context) {
	var req ReasonRequest
	// the body is optional
	_ = c.ShouldBindJSON(&req)
	if err := hs.engine.Pause(c.Request.Context(), req.Reason); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handleUnpause(c *gin.Context) {
	var req ReasonRequest
	_ = c.ShouldBindJSON(&req)
	if err := hs.engine.Unpause(c.Request.Context(), req.Reason); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handleEmergencyWithdraw(c *gin.Context) {
	var req AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	amount, err := hs.engine.EmergencyWithdraw(c.Request.Context(), req.Address)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, gin.H{"amount": amount})
}

func (hs *HTTPServer) handleSetAntiAbuse(c *gin.Context) {
	var req antiabuse.Config
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	if err := hs.engine.SetAntiAbuseConfig(c.Request.Context(), req); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handleSetWhitelist(c *gin.Context) {
	var req WhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	if err := hs.engine.SetWhitelist(c.Request.Context(), req.Address, req.Whitelisted); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}
