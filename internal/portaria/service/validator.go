package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/token"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

const (
	masterTokenID   = "master-access"
	masterSubjectID = "master"
)

// Validator decides whether a scanned payload admits its bearer. Every
// decision except a parse failure is written to the audit log; audit
// failures are logged and never change the decision.
type Validator struct {
	tokens store.TokenStore
	users  store.UserStore
	audit  store.AuditLogStore
	opts   options
}

func NewValidator(tokens store.TokenStore, users store.UserStore, audit store.AuditLogStore, opts ...Option) *Validator {
	return &Validator{
		tokens: tokens,
		users:  users,
		audit:  audit,
		opts:   buildOptions("validator", opts),
	}
}

// kindRules maps store outcomes to reasons for one token kind.
type kindRules struct {
	notFound, used, expired types.Reason
	granted                 string
	checkExpiry             bool
}

var rulesByKind = map[token.Kind]kindRules{
	token.KindVisitor: {
		notFound:    types.ReasonVisitorInvalid,
		used:        types.ReasonVisitorUsed,
		expired:     types.ReasonVisitorExpired,
		granted:     types.ActionVisitorAccessGranted,
		checkExpiry: true,
	},
	token.KindClient: {
		notFound: types.ReasonClientInvalid,
		used:     types.ReasonClientUsed,
		// Client tokens are consumed without an expiry check; a miss can
		// still only be "not found" or "used".
		expired: types.ReasonClientInvalid,
		granted: types.ActionClientAccessGranted,
	},
	token.KindSelf: {
		notFound:    types.ReasonInvalidQRCode,
		used:        types.ReasonQRCodeUsed,
		expired:     types.ReasonQRCodeExpired,
		granted:     types.ActionAccessGranted,
		checkExpiry: true,
	},
}

// Validate checks payload, consumes the token it names and reports the
// outcome. scannerID identifies the staff member operating the scanner.
func (v *Validator) Validate(ctx context.Context, payload, scannerID string) types.ValidationResult {
	now := v.opts.now()

	if token.IsMasterCode(payload) {
		return v.grantMaster(ctx, strings.TrimSpace(payload), scannerID)
	}

	p, err := token.Parse(payload)
	if err != nil {
		return types.ValidationResult{Reason: types.ReasonInvalidFormat}
	}

	kind := p.Kind()
	rules := rulesByKind[kind]

	// The payload expiry is checked before touching the store.
	if kind != token.KindClient && p.ExpiredAt(now) {
		reason := types.ReasonTokenExpired
		if kind == token.KindVisitor {
			reason = types.ReasonVisitorExpired
		}
		v.recordDenial(ctx, scannerID, payload, reason, nil)
		return types.ValidationResult{Reason: reason}
	}

	rec, err := v.tokens.ConsumeToken(ctx, store.ConsumeRequest{
		Digest:      p.Hash,
		Kind:        kind,
		UsedBy:      scannerID,
		Now:         now,
		CheckExpiry: rules.checkExpiry,
	})
	if err != nil {
		reason := v.denialReason(ctx, rules, err)
		var ownerID *string
		if kind == token.KindSelf && rec.OwnerID != "" {
			ownerID = &rec.OwnerID
		}
		v.recordDenial(ctx, scannerID, payload, reason, ownerID)
		return types.ValidationResult{Reason: reason}
	}

	var (
		subject *types.Subject
		ownerID *string
	)
	switch kind {
	case token.KindVisitor:
		subject = visitorSubject(rec, p)
	case token.KindClient:
		subject = clientSubject(rec, p)
	default:
		owner := rec.OwnerID
		ownerID = &owner
		subject = v.ownerSubject(ctx, rec.OwnerID)
	}

	v.record(ctx, store.AuditEntry{
		OwnerID:   ownerID,
		ScannerID: scannerID,
		Action:    rules.granted,
		Success:   true,
		Payload:   payload,
		CreatedAt: now,
	})

	return types.ValidationResult{IsValid: true, Subject: subject, TokenID: rec.ID}
}

func (v *Validator) grantMaster(ctx context.Context, code, scannerID string) types.ValidationResult {
	v.record(ctx, store.AuditEntry{
		ScannerID: scannerID,
		Action:    types.ActionMasterAccessGranted,
		Success:   true,
		Payload:   code,
		CreatedAt: v.opts.now(),
	})

	return types.ValidationResult{
		IsValid: true,
		Subject: &types.Subject{
			ID:        masterSubjectID,
			FirstName: "MASTER",
			LastName:  "ACCESS",
			Role:      types.SubjectRoleMaster,
		},
		TokenID: masterTokenID,
	}
}

func (v *Validator) denialReason(ctx context.Context, rules kindRules, err error) types.Reason {
	switch {
	case errors.Is(err, store.ErrTokenNotFound):
		return rules.notFound
	case errors.Is(err, store.ErrTokenUsed):
		return rules.used
	case errors.Is(err, store.ErrTokenExpired):
		return rules.expired
	default:
		v.opts.logger.ErrorContext(ctx, "consume token failed", "err", err)
		return types.ReasonInvalidQRFormat
	}
}

func visitorSubject(rec store.TokenRecord, p token.Payload) *types.Subject {
	name := p.Name
	if name == "" {
		name = "Visitor"
	}
	return &types.Subject{
		ID:        "visitor-" + rec.ID,
		FirstName: name,
		Role:      types.SubjectRoleVisitor,
	}
}

func clientSubject(rec store.TokenRecord, p token.Payload) *types.Subject {
	name := p.Name
	if name == "" {
		name = "Client"
	}
	invoice := p.Invoice
	if invoice == "" {
		invoice = "N/A"
	}
	return &types.Subject{
		ID:        "client-" + rec.ID,
		FirstName: name,
		Role:      types.SubjectRoleClient,
		Note:      "Invoice: " + invoice,
	}
}

// ownerSubject loads the staff profile behind a self token. The token has
// already been consumed, so a missing profile degrades to the bare id.
func (v *Validator) ownerSubject(ctx context.Context, ownerID string) *types.Subject {
	u, err := v.users.FindByID(ctx, ownerID)
	if err != nil {
		v.opts.logger.WarnContext(ctx, "owner profile lookup failed", "owner_id", ownerID, "err", err)
		return &types.Subject{ID: ownerID}
	}
	return &types.Subject{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.JobTitle,
		PhotoURL:  u.PhotoURL,
	}
}

// recordDenial audits a rejection. ownerID is set when a staff token was
// matched but refused.
func (v *Validator) recordDenial(ctx context.Context, scannerID, payload string, reason types.Reason, ownerID *string) {
	v.record(ctx, store.AuditEntry{
		OwnerID:      ownerID,
		ScannerID:    scannerID,
		Action:       types.ActionAccessDenied,
		Success:      false,
		Payload:      payload,
		ErrorMessage: string(reason),
		CreatedAt:    v.opts.now(),
	})
}

// record persists the entry to the audit log. Errors are logged and
// swallowed so the scanner always receives its decision.
func (v *Validator) record(ctx context.Context, e store.AuditEntry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := v.audit.RecordEntry(ctx, e); err != nil {
		v.opts.logger.WarnContext(ctx, "audit write failed", "action", e.Action, "err", err)
	}
}
