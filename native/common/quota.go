package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaMintsExceeded   = errors.New("quota mints exceeded")
	ErrQuotaCounterOverflow = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	Mints   uint32
	EpochID uint64
}

// Quota defines the mint limits enforced per address. EpochSeconds of zero
// makes the limit apply for the lifetime of the collection.
type Quota struct {
	MaxMintsPerEpoch uint32
	EpochSeconds     uint32
}

// Epoch returns the epoch identifier for the supplied unix timestamp.
func (q Quota) Epoch(unix int64) uint64 {
	if q.EpochSeconds == 0 || unix <= 0 {
		return 0
	}
	return uint64(unix) / uint64(q.EpochSeconds)
}

// Enabled reports whether the quota restricts anything.
func (q Quota) Enabled() bool { return q.MaxMintsPerEpoch > 0 }

// CheckQuota verifies whether the additional mints fit within the configured
// quota. The returned QuotaNow reflects the updated counters when the quota is
// not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addMints uint32) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addMints > 0 {
		if next.Mints > math.MaxUint32-addMints {
			return prev, ErrQuotaCounterOverflow
		}
		next.Mints += addMints
	}
	if q.MaxMintsPerEpoch > 0 && next.Mints > q.MaxMintsPerEpoch {
		return prev, ErrQuotaMintsExceeded
	}
	return next, nil
}
