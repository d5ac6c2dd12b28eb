package mint

import (
	"errors"

	nativecommon "communitymint/native/common"
	"communitymint/native/whitelist"
)

var (
	ErrNilState            = errors.New("mint: state not configured")
	ErrUnauthorized        = errors.New("mint: unauthorized")
	ErrInvalidParameters   = errors.New("mint: invalid parameters")
	ErrSaleNotActive       = errors.New("mint: sale not active")
	ErrNotEligible         = errors.New("mint: caller not eligible")
	ErrInsufficientPayment = errors.New("mint: insufficient payment")
	ErrInvalidConfig       = errors.New("mint: invalid config")
	ErrSoldOut             = errors.New("mint: collection sold out")
	ErrWalletLimit         = errors.New("mint: wallet mint limit reached")
	ErrTokenNotFound       = errors.New("mint: token not found")
	ErrNativeBalance       = errors.New("mint: native balance unavailable")
)

// Reason codes reported to callers when a request is rejected.
const (
	ReasonUnauthorized        = "UNAUTHORIZED"
	ReasonInvalidParameters   = "INVALID_PARAMS"
	ReasonIndexMismatch       = "INDEX_MISMATCH"
	ReasonNotFound            = "LC_NOT_FOUND"
	ReasonSaleNotActive       = "LOCK"
	ReasonNotEligible         = "NOT_ELIGIBLE"
	ReasonInsufficientPayment = "INSUFFICIENT_PAYMENT"
	ReasonCapacityExceeded    = "CAPACITY_EXCEEDED"
	ReasonInvalidConfig       = "INVALID_CONFIG"
	ReasonSoldOut             = "SOLD_OUT"
	ReasonWalletLimit         = "WALLET_LIMIT"
	ReasonPaused              = "PAUSED"
	ReasonOracleFailure       = "ORACLE_FAILURE"
	ReasonTokenNotFound       = "TOKEN_NOT_FOUND"
	ReasonInternal            = "INTERNAL"
)

var reasonTable = []struct {
	err    error
	reason string
}{
	{ErrUnauthorized, ReasonUnauthorized},
	{whitelist.ErrUnauthorized, ReasonUnauthorized},
	{ErrInvalidParameters, ReasonInvalidParameters},
	{whitelist.ErrInvalidParameters, ReasonInvalidParameters},
	{whitelist.ErrIndexMismatch, ReasonIndexMismatch},
	{whitelist.ErrNotFound, ReasonNotFound},
	{ErrSaleNotActive, ReasonSaleNotActive},
	{ErrNotEligible, ReasonNotEligible},
	{ErrInsufficientPayment, ReasonInsufficientPayment},
	{whitelist.ErrCapacityExceeded, ReasonCapacityExceeded},
	{ErrInvalidConfig, ReasonInvalidConfig},
	{ErrSoldOut, ReasonSoldOut},
	{ErrWalletLimit, ReasonWalletLimit},
	{nativecommon.ErrModulePaused, ReasonPaused},
	{whitelist.ErrOracleFailure, ReasonOracleFailure},
	{whitelist.ErrOracleUnavailable, ReasonOracleFailure},
	{ErrNativeBalance, ReasonOracleFailure},
	{ErrTokenNotFound, ReasonTokenNotFound},
}

// ReasonCode maps an engine or registry error to its rejection reason string.
// Nil maps to the empty string; unknown errors map to ReasonInternal.
func ReasonCode(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range reasonTable {
		if errors.Is(err, entry.err) {
			return entry.reason
		}
	}
	return ReasonInternal
}
