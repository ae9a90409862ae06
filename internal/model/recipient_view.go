package model

// RecipientView hides the user key when listing recipients.
type RecipientView struct {
	UserKey  string   `json:"userKey"`
	Name     string   `json:"name"`
	Device   string   `json:"device,omitempty"`
	Status   string   `json:"status"`
	Verified bool     `json:"verified"`
	Devices  []string `json:"devices,omitempty"`
}
