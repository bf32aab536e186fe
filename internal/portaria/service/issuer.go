package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/token"
)

var (
	ErrInvalidOwnerID     = errors.New("owner id is required")
	ErrInvalidSubjectName = errors.New("subject name is required")
)

// Issuer creates tokens for staff (self), clients and visitors.
type Issuer struct {
	tokens store.TokenStore
	opts   options
}

func NewIssuer(tokens store.TokenStore, opts ...Option) *Issuer {
	return &Issuer{tokens: tokens, opts: buildOptions("issuer", opts)}
}

// IssueSelfToken rotates ownerID's personal token: every previous self
// token of the owner is deleted in the same transaction that stores the new
// one. A non-positive duration means DefaultSelfTokenDuration.
func (i *Issuer) IssueSelfToken(ctx context.Context, ownerID string, duration time.Duration) (store.TokenRecord, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return store.TokenRecord{}, ErrInvalidOwnerID
	}
	if duration <= 0 {
		duration = DefaultSelfTokenDuration
	}

	rec, err := i.build(token.KindSelf, ownerID, duration, token.Extra{})
	if err != nil {
		return store.TokenRecord{}, err
	}

	out, err := i.tokens.ReplaceSelfToken(ctx, rec)
	if err != nil {
		return store.TokenRecord{}, fmt.Errorf("store self token: %w", err)
	}
	i.opts.logger.Debug("self token issued", "owner_id", ownerID, "token_id", out.ID)
	return out, nil
}

// IssueClientToken issues a merchandise-pickup token filed under the vendor.
// It expires a year out and is effectively invalidated only by use.
func (i *Issuer) IssueClientToken(ctx context.Context, clientName, invoiceNumber, vendorID string) (store.TokenRecord, error) {
	clientName = strings.TrimSpace(clientName)
	vendorID = strings.TrimSpace(vendorID)
	if clientName == "" {
		return store.TokenRecord{}, ErrInvalidSubjectName
	}
	if vendorID == "" {
		return store.TokenRecord{}, ErrInvalidOwnerID
	}

	rec, err := i.build(token.KindClient, vendorID, ClientTokenLifetime, token.Extra{
		Name:     clientName,
		Invoice:  strings.TrimSpace(invoiceNumber),
		IssuerID: vendorID,
	})
	if err != nil {
		return store.TokenRecord{}, err
	}

	out, err := i.tokens.InsertToken(ctx, rec)
	if err != nil {
		return store.TokenRecord{}, fmt.Errorf("store client token: %w", err)
	}
	i.opts.logger.Debug("client token issued", "vendor_id", vendorID, "token_id", out.ID)
	return out, nil
}

// IssueVisitorToken issues a single-use token that lives VisitorTokenLifetime.
func (i *Issuer) IssueVisitorToken(ctx context.Context, visitorName, creatorID string) (store.TokenRecord, error) {
	visitorName = strings.TrimSpace(visitorName)
	creatorID = strings.TrimSpace(creatorID)
	if visitorName == "" {
		return store.TokenRecord{}, ErrInvalidSubjectName
	}
	if creatorID == "" {
		return store.TokenRecord{}, ErrInvalidOwnerID
	}

	rec, err := i.build(token.KindVisitor, creatorID, VisitorTokenLifetime, token.Extra{
		Name:     visitorName,
		IssuerID: creatorID,
	})
	if err != nil {
		return store.TokenRecord{}, err
	}

	out, err := i.tokens.InsertToken(ctx, rec)
	if err != nil {
		return store.TokenRecord{}, fmt.Errorf("store visitor token: %w", err)
	}
	i.opts.logger.Debug("visitor token issued", "creator_id", creatorID, "token_id", out.ID)
	return out, nil
}

// ActiveSelfToken returns the owner's current personal token or
// store.ErrTokenNotFound.
func (i *Issuer) ActiveSelfToken(ctx context.Context, ownerID string) (store.TokenRecord, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return store.TokenRecord{}, ErrInvalidOwnerID
	}
	return i.tokens.ActiveSelfToken(ctx, ownerID, i.opts.now())
}

func (i *Issuer) MasterCodes() []string {
	return token.MasterCodes()
}

func (i *Issuer) build(kind token.Kind, ownerID string, ttl time.Duration, extra token.Extra) (store.TokenRecord, error) {
	secret, err := token.GenerateSecret()
	if err != nil {
		return store.TokenRecord{}, err
	}
	digest := token.Digest(secret)

	now := i.opts.now()
	expiresAt := now.Add(ttl)

	payload, err := token.Encode(kind, digest, expiresAt, extra)
	if err != nil {
		return store.TokenRecord{}, err
	}

	return store.TokenRecord{
		OwnerID:   ownerID,
		Secret:    secret,
		Digest:    digest,
		Payload:   payload,
		Kind:      kind,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}
