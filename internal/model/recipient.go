package model

import "time"

// Recipient is a Pushover user or group key the relay delivers to.
type Recipient struct {
	UserKey    string    `json:"userKey"`
	Name       string    `json:"name"`
	Device     string    `json:"device,omitempty"`
	Sound      string    `json:"sound,omitempty"`
	Status     string    `json:"status"`
	Verified   bool      `json:"verified"`
	Devices    []string  `json:"devices,omitempty"`
	VerifyNote string    `json:"verifyNote,omitempty"`
	VerifiedAt time.Time `json:"verifiedAt,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

const (
	RecipientStatusActive = "ACTIVE"
	RecipientStatusStop   = "STOP"
)

// Active reports whether the recipient receives broadcasts.
func (r *Recipient) Active() bool {
	return r.Status == "" || r.Status == RecipientStatusActive
}
