package server

import (
	"errors"
	"net/http"

	nativecommon "lumenlend/native/common"
	"lumenlend/native/lending"
)

// statusFor maps engine errors to HTTP status codes. Unknown errors are
// reported as internal failures without leaking detail.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrDustPosition),
		errors.Is(err, lending.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrUnauthorizedCaller):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrNoOutstandingDebt),
		errors.Is(err, lending.ErrNoPendingParameters):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrCapacityExceeded),
		errors.Is(err, lending.ErrHealthCheckFailed),
		errors.Is(err, lending.ErrInsufficientDeposit),
		errors.Is(err, lending.ErrNotLiquidatable),
		errors.Is(err, lending.ErrSelfLiquidation),
		errors.Is(err, lending.ErrNothingToSeize),
		errors.Is(err, lending.ErrCollateralRemaining),
		errors.Is(err, lending.ErrInsufficientReserve),
		errors.Is(err, lending.ErrParameterDelay):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, lending.ErrOracleUnavailable),
		errors.Is(err, lending.ErrMintRejected),
		errors.Is(err, lending.ErrBurnRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
