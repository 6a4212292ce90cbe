package models

import (
	"time"

	"github.com/google/uuid"
)

// Heartbeat is a liveness record for one reporting origin within a
// tenant. Heartbeats are independent of alerts and issues.
type Heartbeat struct {
	ID           string        `json:"id"`
	Origin       string        `json:"origin"`
	Tenant       string        `json:"tenant,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	Type         string        `json:"type,omitempty"`
	CreateTime   time.Time     `json:"createTime"`
	Timeout      time.Duration `json:"timeout"`
	ReceiveTime  time.Time     `json:"receiveTime"`
	ReceiveCount int64         `json:"receiveCount"`
}

// NewHeartbeat creates the first heartbeat record for an origin.
func NewHeartbeat(origin, tenant string, timeout time.Duration, now time.Time) *Heartbeat {
	return &Heartbeat{
		ID:           uuid.NewString(),
		Origin:       origin,
		Tenant:       tenant,
		CreateTime:   now,
		Timeout:      timeout,
		ReceiveTime:  now,
		ReceiveCount: 1,
	}
}

// IsStale reports whether the origin has missed its beat deadline.
func (h *Heartbeat) IsStale(now time.Time) bool {
	return now.After(h.ReceiveTime.Add(h.Timeout))
}
