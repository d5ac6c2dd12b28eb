package rpc

import (
	"encoding/json"
	"net/http"

	"communitymint/gateway/middleware"
	"communitymint/native/mint"
	"communitymint/observability/logging"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var reasonStatus = map[string]int{
	mint.ReasonUnauthorized:        http.StatusForbidden,
	mint.ReasonInvalidParameters:   http.StatusBadRequest,
	mint.ReasonIndexMismatch:       http.StatusConflict,
	mint.ReasonNotFound:            http.StatusNotFound,
	mint.ReasonSaleNotActive:       http.StatusLocked,
	mint.ReasonNotEligible:         http.StatusForbidden,
	mint.ReasonInsufficientPayment: http.StatusPaymentRequired,
	mint.ReasonCapacityExceeded:    http.StatusConflict,
	mint.ReasonInvalidConfig:       http.StatusBadRequest,
	mint.ReasonSoldOut:             http.StatusConflict,
	mint.ReasonWalletLimit:         http.StatusTooManyRequests,
	mint.ReasonPaused:              http.StatusServiceUnavailable,
	mint.ReasonOracleFailure:       http.StatusBadGateway,
	mint.ReasonTokenNotFound:       http.StatusNotFound,
	mint.ReasonInternal:            http.StatusInternalServerError,
}

// statusFor maps a rejection reason to its HTTP status.
func statusFor(reason string) int {
	if status, ok := reasonStatus[reason]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeReason(w http.ResponseWriter, reason, message string) {
	writeJSON(w, statusFor(reason), errorResponse{Error: reason, Message: message})
}

// writeEngineError reports err with its reason code. Internal errors do not
// leak their message. The token subject is masked in log lines.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	reason := mint.ReasonCode(err)
	message := err.Error()
	subject, _ := middleware.Subject(r.Context())
	attrs := []any{"method", r.Method, "path", r.URL.Path, "reason", reason, logging.MaskField("subject", subject)}
	if reason == mint.ReasonInternal {
		s.logger.Error("rpc: request failed", append(attrs, "error", err)...)
		message = ""
	} else {
		s.logger.Debug("rpc: request rejected", attrs...)
	}
	writeReason(w, reason, message)
}
