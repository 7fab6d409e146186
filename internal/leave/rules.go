package leave

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Status string

const (
	StatusPending         Status = "PENDING"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
)

const DefaultAutoApproveMaxDays = 2

// DaySpan counts calendar days from start to end inclusive:
// ceil((end-start)/24h) + 1. An end before start is not rejected.
func DaySpan(start, end time.Time) int {
	return int(math.Ceil(end.Sub(start).Hours()/24)) + 1
}

// Decide approves requests of at most maxAutoApproveDays days.
func Decide(days, maxAutoApproveDays int) Status {
	if days <= maxAutoApproveDays {
		return StatusApproved
	}
	return StatusPendingApproval
}

// ParseDate accepts YYYY-MM-DD and RFC 3339 timestamps. Date-only values are UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
