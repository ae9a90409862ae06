package model

import "time"

// TrackedReceipt is the relay's record of an emergency message.
type TrackedReceipt struct {
	Receipt         string    `json:"receipt"`
	UserKey         string    `json:"userKey"`
	BatchID         string    `json:"batchId"`
	Title           string    `json:"title"`
	Acknowledged    bool      `json:"acknowledged"`
	AcknowledgedBy  string    `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt  int64     `json:"acknowledgedAt,omitempty"`
	LastDeliveredAt int64     `json:"lastDeliveredAt,omitempty"`
	Expired         bool      `json:"expired"`
	ExpiresAt       int64     `json:"expiresAt,omitempty"`
	CalledBack      bool      `json:"calledBack"`
	Cancelled       bool      `json:"cancelled"`
	Rejected        bool      `json:"rejected"`
	LastError       string    `json:"lastError,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Pending reports whether the service is still retrying the message. A
// receipt the service no longer recognises is settled.
func (r *TrackedReceipt) Pending() bool {
	return !r.Acknowledged && !r.Expired && !r.Cancelled && !r.Rejected
}
