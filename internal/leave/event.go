package leave

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	RoutingKey          = "leave.requested"
	ProcessedRoutingKey = "leave.processed"
	Domain              = "leave"
)

// Requested is the payload of leave.requested. Dates are YYYY-MM-DD or RFC 3339.
type Requested struct {
	RequestID  string `json:"requestId"`
	EmployeeID string `json:"employeeId,omitempty"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
}

func (e Requested) Dates() (start, end time.Time, err error) {
	start, err = ParseDate(e.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = ParseDate(e.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// Processed is published on leave.processed after a status decision.
type Processed struct {
	RequestID   string `json:"requestId"`
	ProcessedAt string `json:"processedAt"`
	Status      Status `json:"status"`
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload map[string]any) error
}

// PublishLeaveRequested announces a new leave request with attempts set to 0.
func PublishLeaveRequested(ctx context.Context, p Publisher, e Requested) error {
	if strings.TrimSpace(e.RequestID) == "" {
		return errors.New("requestId is required")
	}
	if _, _, err := e.Dates(); err != nil {
		return err
	}
	payload := map[string]any{
		"requestId": e.RequestID,
		"startDate": e.StartDate,
		"endDate":   e.EndDate,
		"attempts":  0,
	}
	if e.EmployeeID != "" {
		payload["employeeId"] = e.EmployeeID
	}
	return p.Publish(ctx, RoutingKey, payload)
}
