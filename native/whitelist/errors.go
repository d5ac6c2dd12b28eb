package whitelist

import "errors"

var (
	ErrNilState          = errors.New("whitelist: state not configured")
	ErrUnauthorized      = errors.New("whitelist: unauthorized")
	ErrIndexMismatch     = errors.New("whitelist: index mismatch")
	ErrInvalidParameters = errors.New("whitelist: invalid parameters")
	ErrNotFound          = errors.New("whitelist: entry not found")
	ErrCapacityExceeded  = errors.New("whitelist: capacity exceeded")
	ErrOracleUnavailable = errors.New("whitelist: balance oracle not configured")
	ErrOracleFailure     = errors.New("whitelist: balance oracle failure")
)
