// Package anonymize resolves tagged user/source values at ingestion and
// buckets timestamps to a configured granularity.
//
// Anonymized values are hex(sha256(value || salt)[:16]): 32 hex characters,
// deterministic for one salt and unlinkable across deployments.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rzbill/evstore/pkg/events"
)

// HashLen is the length in bytes of the truncated digest.
const HashLen = 16

// Hash returns the salted, truncated digest of s as lowercase hex.
func Hash(s string, salt *Salt) string {
	h := sha256.New()
	h.Write([]byte(s))
	h.Write(salt[:])
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:HashLen])
}

// Resolve turns a tagged value into the string to store. A nil value stays
// nil. Anonymize values need the salt and yield ErrSaltNotReady without it.
func Resolve(v *events.Anonymizable, salt *Salt) (*string, error) {
	if v == nil {
		return nil, nil
	}
	if v.Visibility != events.Anonymize {
		s := v.Value
		return &s, nil
	}
	if salt == nil {
		return nil, ErrSaltNotReady
	}
	s := Hash(v.Value, salt)
	return &s, nil
}

// NeedsSalt reports whether resolving e requires the salt.
func NeedsSalt(e *events.IdempotentEvent) bool {
	return (e.User != nil && e.User.Visibility == events.Anonymize) ||
		(e.Source != nil && e.Source.Visibility == events.Anonymize)
}

// Bucket rounds ts down to a multiple of granularityMs. Zero disables it.
func Bucket(ts, granularityMs uint64) uint64 {
	if granularityMs == 0 {
		return ts
	}
	return ts - ts%granularityMs
}
