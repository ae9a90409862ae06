package model

// StatusRes reports relay health and recipient counts.
type StatusRes struct {
	Status             string `json:"status"`
	ActiveRecipientNum int    `json:"activeRecipientNum"`
	AllRecipientNum    int    `json:"allRecipientNum"`
	PendingReceiptNum  int    `json:"pendingReceiptNum"`
}
