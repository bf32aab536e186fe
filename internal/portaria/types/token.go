package types

type IssueSelfRequest struct {
	DurationSeconds int `json:"duration_seconds,omitempty"`
}

type IssueClientRequest struct {
	ClientName    string `json:"client_name"`
	InvoiceNumber string `json:"invoice_number"`
}

type IssueVisitorRequest struct {
	VisitorName string `json:"visitor_name"`
}

// TokenResponse is what a subject receives after issuing: the payload to
// show and its rendered QR image. The secret never leaves the server.
type TokenResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	OwnerID   string `json:"owner_id"`
	Payload   string `json:"payload"`
	ExpiresAt string `json:"expires_at"`
	QRDataURL string `json:"qr_data_url"`
}

type TokenStats struct {
	ActiveTokens int64 `json:"active_tokens"`
	TodayScans   int64 `json:"today_scans"`
	SuccessRate  int   `json:"success_rate"`
}
