package types

import (
	"fmt"
	"net/http"
)

// Error is a numbered escrow error surfaced to callers. Values are compared
// with errors.Is against the sentinels below.
type Error struct {
	Code uint32
	Name string
}

func (e *Error) Error() string {
	return fmt.Sprintf("escrow error %d: %s", e.Code, e.Name)
}

func newError(code uint32, name string) *Error {
	return &Error{Code: code, Name: name}
}

var (
	ErrAlreadyInitialized          = newError(1, "AlreadyInitialized")
	ErrNotInitialized              = newError(2, "NotInitialized")
	ErrBountyExists                = newError(3, "BountyExists")
	ErrBountyNotFound              = newError(4, "BountyNotFound")
	ErrFundsNotLocked              = newError(5, "FundsNotLocked")
	ErrDeadlineNotPassed           = newError(6, "DeadlineNotPassed")
	ErrUnauthorized                = newError(7, "Unauthorized")
	ErrInvalidAmount               = newError(8, "InvalidAmount")
	ErrInvalidDeadline             = newError(9, "InvalidDeadline")
	ErrBatchSizeMismatch           = newError(10, "BatchSizeMismatch")
	ErrDuplicateBountyId           = newError(11, "DuplicateBountyId")
	ErrInsufficientFunds           = newError(12, "InsufficientFunds")
	ErrRefundNotApproved           = newError(13, "RefundNotApproved")
	ErrScheduleExists              = newError(14, "ScheduleExists")
	ErrScheduleNotFound            = newError(15, "ScheduleNotFound")
	ErrInvalidScheduleTimestamp    = newError(16, "InvalidScheduleTimestamp")
	ErrInsufficientScheduledAmount = newError(17, "InsufficientScheduledAmount")
	ErrScheduleAlreadyReleased     = newError(18, "ScheduleAlreadyReleased")
	ErrScheduleNotDue              = newError(19, "ScheduleNotDue")
	ErrInvalidFeeRate              = newError(20, "InvalidFeeRate")
	ErrInvalidBatchSize            = newError(21, "InvalidBatchSize")
	ErrActionNotReady              = newError(22, "ActionNotReady")
	ErrActionNotFound              = newError(23, "ActionNotFound")
	ErrInvalidTimeLock             = newError(24, "InvalidTimeLock")
	ErrContractPaused              = newError(25, "ContractPaused")
	ErrRateLimited                 = newError(26, "RateLimited")
	ErrReentrancy                  = newError(27, "Reentrancy")
	ErrNotPaused                   = newError(28, "NotPaused")
	ErrInvalidAddress              = newError(29, "InvalidAddress")
)

// IsFatal reports whether the error must abort the enclosing transaction
// rather than being retried by the caller with corrected arguments.
func (e *Error) IsFatal() bool {
	switch e {
	case ErrUnauthorized, ErrRateLimited, ErrReentrancy:
		return true
	}
	return false
}

// HTTPStatus maps the error to the status code used by the REST API.
func (e *Error) HTTPStatus() int {
	switch e {
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrBountyNotFound, ErrScheduleNotFound, ErrActionNotFound:
		return http.StatusNotFound
	case ErrAlreadyInitialized, ErrBountyExists, ErrScheduleExists, ErrReentrancy,
		ErrFundsNotLocked, ErrScheduleAlreadyReleased:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrContractPaused, ErrNotInitialized:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}
