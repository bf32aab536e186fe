package types

// Reason is the short, enumerable outcome message of a failed validation.
type Reason string

const (
	ReasonInvalidFormat   Reason = "invalid format"
	ReasonVisitorExpired  Reason = "visitor token expired"
	ReasonVisitorInvalid  Reason = "invalid visitor token"
	ReasonVisitorUsed     Reason = "visitor token already used"
	ReasonClientInvalid   Reason = "invalid client token"
	ReasonClientUsed      Reason = "client token already used"
	ReasonTokenExpired    Reason = "token expired"
	ReasonInvalidQRCode   Reason = "invalid QR code"
	ReasonQRCodeUsed      Reason = "QR code already used"
	ReasonQRCodeExpired   Reason = "QR code expired"
	ReasonInvalidQRFormat Reason = "invalid QR code format"
)

// AlreadyUsed reports a replay of a single-use token.
func (r Reason) AlreadyUsed() bool {
	return r == ReasonVisitorUsed || r == ReasonClientUsed || r == ReasonQRCodeUsed
}

// Expired reports a time-based rejection.
func (r Reason) Expired() bool {
	return r == ReasonVisitorExpired || r == ReasonTokenExpired || r == ReasonQRCodeExpired
}

// Audit log action tags.
const (
	ActionAccessGranted        = "access_granted"
	ActionAccessDenied         = "access_denied"
	ActionVisitorAccessGranted = "visitor_access_granted"
	ActionClientAccessGranted  = "client_access_granted"
	ActionMasterAccessGranted  = "master_access_granted"
)

// Role labels for subjects that have no account.
const (
	SubjectRoleMaster  = "System Administrator"
	SubjectRoleVisitor = "Visitor"
	SubjectRoleClient  = "Client - Merchandise Pickup"
)

// Subject is the display identity of whoever a token admitted.
type Subject struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Note      string `json:"note,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// ValidationResult is the pass/fail decision for one scan.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Subject *Subject `json:"subject,omitempty"`
	TokenID string   `json:"token_id,omitempty"`
	Reason  Reason   `json:"reason,omitempty"`
}

type ScanRequest struct {
	Payload string `json:"payload"`
}

type ScanResponse struct {
	OK         bool     `json:"ok"`
	Granted    bool     `json:"granted"`
	Reason     Reason   `json:"reason,omitempty"`
	Message    string   `json:"message"`
	Subject    *Subject `json:"subject,omitempty"`
	TokenID    string   `json:"token_id,omitempty"`
	ServerTime string   `json:"server_time"`
}
