package httpapi

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

// ── Scan ─────────────────────────────────────────────────────────────────────

// scanRequestFromProto reads {"payload": "..."} from a Struct. A missing or
// non-string field yields an empty payload, which validates as malformed.
func scanRequestFromProto(p *structpb.Struct) types.ScanRequest {
	v, ok := p.GetFields()["payload"]
	if !ok {
		return types.ScanRequest{}
	}
	return types.ScanRequest{Payload: v.GetStringValue()}
}

func scanResponseToProto(r types.ScanResponse) (*structpb.Struct, error) {
	m := map[string]any{
		"ok":          r.OK,
		"granted":     r.Granted,
		"message":     r.Message,
		"server_time": r.ServerTime,
	}
	if r.Reason != "" {
		m["reason"] = string(r.Reason)
	}
	if r.TokenID != "" {
		m["token_id"] = r.TokenID
	}
	if r.Subject != nil {
		m["subject"] = map[string]any{
			"id":         r.Subject.ID,
			"first_name": r.Subject.FirstName,
			"last_name":  r.Subject.LastName,
			"role":       r.Subject.Role,
			"note":       r.Subject.Note,
			"photo_url":  r.Subject.PhotoURL,
		}
	}
	return structpb.NewStruct(m)
}

// scanMessage is the operator banner for a decision.
func scanMessage(res types.ValidationResult) string {
	switch {
	case res.IsValid:
		return "Access granted"
	case res.Reason.AlreadyUsed():
		return "QR code already used"
	case res.Reason.Expired():
		return "QR code expired"
	default:
		return "QR code invalid"
	}
}

func scanResponse(res types.ValidationResult, now time.Time) types.ScanResponse {
	return types.ScanResponse{
		OK:         true,
		Granted:    res.IsValid,
		Reason:     res.Reason,
		Message:    scanMessage(res),
		Subject:    res.Subject,
		TokenID:    res.TokenID,
		ServerTime: now.UTC().Format(time.RFC3339Nano),
	}
}

// ── Tokens ───────────────────────────────────────────────────────────────────

func tokenResponse(rec store.TokenRecord, qrDataURL string) types.TokenResponse {
	return types.TokenResponse{
		ID:        rec.ID,
		Kind:      string(rec.Kind),
		OwnerID:   rec.OwnerID,
		Payload:   rec.Payload,
		ExpiresAt: rec.ExpiresAt.UTC().Format(time.RFC3339),
		QRDataURL: qrDataURL,
	}
}
