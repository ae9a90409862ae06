package model

// NoticeRequest is the plaintext notice clients hand to the relay.
type NoticeRequest struct {
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	URL       string   `json:"url"`
	URLTitle  string   `json:"urlTitle"`
	Priority  string   `json:"priority"`
	Sound     string   `json:"sound"`
	Timestamp int64    `json:"timestamp"`
	HTML      bool     `json:"html"`
	Monospace bool     `json:"monospace"`
	Retry     int      `json:"retry"`
	Expire    int      `json:"expire"`
	Callback  string   `json:"callback"`
	UserKeys  []string `json:"userKeys"`
}

// NoticeResult summarises a push attempt for one recipient.
type NoticeResult struct {
	UserKey   string   `json:"userKey"`
	Status    string   `json:"status"`
	RequestID string   `json:"requestId,omitempty"`
	Receipt   string   `json:"receipt,omitempty"`
	Message   string   `json:"message,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// NoticeSummary counts the outcome of a broadcast.
type NoticeSummary struct {
	BatchID    string `json:"batchId"`
	SendNum    int    `json:"sendNum"`
	SuccessNum int    `json:"successNum"`
	Remaining  int    `json:"remaining"`
}

const (
	NoticeStatusSuccess = "SUCCESS"
	NoticeStatusFailed  = "FAILED"
)
