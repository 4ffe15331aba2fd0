package models

import "time"

// Tier is a storage plan with a fixed byte ceiling. Seeded by migration;
// there is no admin CRUD over tiers in this core (that lives in the
// out-of-scope admin surface).
type Tier struct {
	ID         string
	Name       string
	LimitBytes int64
}

// UserQuota is the per-user attribute tracked by QuotaLedger. UsedBytes
// may transiently over-count during an in-flight upload (reservation-first
// discipline); at rest it equals the sum of sizes of the user's
// non-deleted FileNodes.
type UserQuota struct {
	OwnerID    string
	TierID     string
	UsedBytes  int64
	LimitBytes int64
	UpdatedAt  time.Time
}

// Remaining returns the number of bytes still available to reserve.
func (q *UserQuota) Remaining() int64 {
	r := q.LimitBytes - q.UsedBytes
	if r < 0 {
		return 0
	}
	return r
}
