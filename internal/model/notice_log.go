package model

import "time"

// NoticeLog tracks each push attempt.
type NoticeLog struct {
	ID        uint64    `json:"id"`
	BatchID   string    `json:"batchId"`
	UserKey   string    `json:"userKey"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  int       `json:"priority"`
	RequestID string    `json:"requestId"`
	Receipt   string    `json:"receipt,omitempty"`
	Result    string    `json:"result"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoticeLogFilter describes query parameters for log searching.
type NoticeLogFilter struct {
	UserKey   string
	Status    string
	Priority  *int
	BeginTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}
