package core

import "time"

// DefaultLockTTL is the lease granted when a caller does not specify one.
const DefaultLockTTL = 300 * time.Second

// ResourceLock is a leased mutual-exclusion claim on a resource id. At most
// one unexpired lock may exist per resource. Expiry is enforced at read
// time: an expired lock is treated as absent, not actively revoked.
type ResourceLock struct {
	ResourceID string        `json:"resource_id"`
	HolderID   string        `json:"holder_id"`
	AcquiredAt time.Time     `json:"acquired_at"`
	TTL        time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant the lease lapses.
func (l *ResourceLock) ExpiresAt() time.Time {
	return l.AcquiredAt.Add(l.TTL)
}

// Expired reports whether the lease has lapsed as of now.
func (l *ResourceLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt())
}

// HeldBy reports whether the lock is an unexpired claim by the holder.
func (l *ResourceLock) HeldBy(holderID string, now time.Time) bool {
	return l.HolderID == holderID && !l.Expired(now)
}
