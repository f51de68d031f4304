package scheduler

import "errors"

// Failures the stores and the façade surface to callers. Domain failures
// (invalid input, no overlap, no free slots) come from the schedule package;
// these cover the stateful edges.
var (
	// ErrProfileNotFound means the invitee email resolved to no user.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrSlotTaken means the compare-and-set on (participant pair, slot
	// start) lost to an earlier booking. Callers must re-fetch slots and
	// pick another; retrying the same slot returns the same answer.
	ErrSlotTaken = errors.New("slot already booked")

	// ErrUpstream means a profile or calendar-block read failed or timed
	// out after retries. The request fails closed: no slots are returned
	// rather than assuming the missing party has no blocks.
	ErrUpstream = errors.New("upstream store unavailable")
)
