package http

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goatnetwork/goat-escrow/internal/types"
)

func (hs *HTTPServer) handleInit(c *gin.Context) {
	var req InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	if err := hs.engine.Initialize(c.Request.Context(), req.Admin, req.Token); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handleLock(c *gin.Context) {
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	if err := hs.engine.LockFunds(c.Request.Context(), req.Depositor, req.BountyID, req.Amount, req.Deadline); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, gin.H{"bounty_id": req.BountyID})
}

func (hs *HTTPServer) handleBatchLock(c *gin.Context) {
	var req BatchLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	items, err := types.ZipLockItems(req.BountyIDs, req.Depositors, req.Amounts, req.Deadlines)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	n, err := hs.engine.BatchLockFunds(c.Request.Context(), items)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, gin.H{"count": n})
}

func (hs *HTTPServer) handleRelease(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	if err := hs.engine.ReleaseFunds(c.Request.Context(), id, req.Recipient, req.Amount); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handleBatchRelease(c *gin.Context) {
	var req BatchReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	items, err := types.ZipReleaseItems(req.BountyIDs, req.Recipients, req.Amounts)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	n, err := hs.engine.BatchReleaseFunds(c.Request.Context(), items)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, gin.H{"count": n})
}

func (hs *HTTPServer) handleApproveRefund(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	var req ApproveRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	if err := hs.engine.ApproveRefund(c.Request.Context(), id, req.Amount, req.Recipient, req.Mode); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handleRefund(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	if err := hs.engine.Refund(c.Request.Context(), id, req.Amount, req.Recipient, req.Mode); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handleCreateSchedule(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	sid, err := hs.engine.CreateReleaseSchedule(c.Request.Context(), id, req.Amount, req.ReleaseTimestamp, req.Recipient)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, gin.H{"schedule_id": sid})
}

func (hs *HTTPServer) handleReleaseScheduleAutomatic(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	sid, valid := uintParam(c, "sid")
	if !valid {
		return
	}
	if err := hs.engine.ReleaseScheduleAutomatic(c.Request.Context(), id, sid); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handleReleaseScheduleManual(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	sid, valid := uintParam(c, "sid")
	if !valid {
		return
	}
	if err := hs.engine.ReleaseScheduleManual(c.Request.Context(), id, sid); err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, nil)
}

func (hs *HTTPServer) handleGetBounty(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	info, err := hs.engine.GetEscrowInfo(c.Request.Context(), id)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, info)
}

func (hs *HTTPServer) handleGetRefundApproval(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	approval, err := hs.engine.GetRefundApproval(c.Request.Context(), id)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, approval)
}

func (hs *HTTPServer) handleRefundEligibility(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	elig, err := hs.engine.GetRefundEligibility(c.Request.Context(), id)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, elig)
}

func (hs *HTTPServer) handleReleaseHistory(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	history, err := hs.engine.GetReleaseHistory(c.Request.Context(), id)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, history)
}

// handleListSchedules returns all schedules, or only pending or due ones
// with ?filter=pending|due.
func (hs *HTTPServer) handleListSchedules(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	var (
		out interface{}
		err error
	)
	switch c.Query("filter") {
	case "":
		out, err = hs.engine.GetAllReleaseSchedules(ctx, id)
	case "pending":
		out, err = hs.engine.GetPendingSchedules(ctx, id)
	case "due":
		out, err = hs.engine.GetDueSchedules(ctx, id)
	default:
		badRequest(c, "Invalid filter")
		return
	}
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, out)
}

func (hs *HTTPServer) handleGetSchedule(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	sid, valid := uintParam(c, "sid")
	if !valid {
		return
	}
	sch, err := hs.engine.GetReleaseSchedule(c.Request.Context(), id, sid)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, sch)
}

func (hs *HTTPServer) handleListBounties(c *gin.Context) {
	var (
		filter types.BountyFilter
		page   types.Pagination
	)
	if s := c.Query("status"); s != "" {
		st, err := types.ParseEscrowStatus(s)
		if err != nil {
			badRequest(c, "Invalid status")
			return
		}
		filter.Status = &st
	}
	if d := c.Query("depositor"); d != "" {
		filter.Depositor = &d
	}
	for _, p := range []struct {
		name string
		dst  **int64
	}{{"min_amount", &filter.MinAmount}, {"max_amount", &filter.MaxAmount}} {
		if raw := c.Query(p.name); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				badRequest(c, "Invalid "+p.name)
				return
			}
			*p.dst = &v
		}
	}
	for _, p := range []struct {
		name string
		dst  **uint64
	}{{"start_deadline", &filter.StartDeadline}, {"end_deadline", &filter.EndDeadline}} {
		if raw := c.Query(p.name); raw != "" {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				badRequest(c, "Invalid "+p.name)
				return
			}
			*p.dst = &v
		}
	}
	var err error
	if page.StartIndex, err = strconv.Atoi(c.DefaultQuery("start_index", "0")); err != nil || page.StartIndex < 0 {
		badRequest(c, "Invalid start_index")
		return
	}
	if page.Limit, err = strconv.Atoi(c.DefaultQuery("limit", "0")); err != nil || page.Limit < 0 {
		badRequest(c, "Invalid limit")
		return
	}

	rows, err := hs.engine.GetBounties(c.Request.Context(), filter, page)
	if err != nil {
		hs.writeError(c, err)
		return
	}
	ok(c, rows)
}
