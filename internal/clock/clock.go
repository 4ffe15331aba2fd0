// Package clock is the monotonic real-time collaborator the storage core
// depends on: created_at/updated_at stamps and multipart session expiry
// flow through a Clock so tests can pin time instead of racing the wall
// clock. Token issued-at/expiry claims do not: the auth package stamps
// them from time.Now.
package clock

import "time"

// Clock returns the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock, backed by time.Now.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed is a test Clock that always returns the same instant.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time { return f.At }
