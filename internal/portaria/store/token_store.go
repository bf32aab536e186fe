package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/token"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenUsed     = errors.New("token already used")
	ErrTokenExpired  = errors.New("token expired")
)

// TokenRecord is one issued token row. OwnerID is the staff account the row
// is filed under: the vendor for client tokens and the creator for visitor
// tokens.
type TokenRecord struct {
	ID        string
	OwnerID   string
	Secret    string
	Digest    string
	Payload   string
	Kind      token.Kind
	ExpiresAt time.Time
	IsUsed    bool
	UsedAt    *time.Time
	UsedBy    string
	CreatedAt time.Time
}

// ConsumeRequest selects the token to mark used.
type ConsumeRequest struct {
	Digest string
	Kind   token.Kind
	UsedBy string
	Now    time.Time

	// CheckExpiry rejects rows whose stored expiry is not after Now.
	CheckExpiry bool
}

// TokenStore persists issued tokens.
type TokenStore interface {
	// InsertToken adds a row. The store assigns ID when it is empty.
	InsertToken(ctx context.Context, rec TokenRecord) (TokenRecord, error)

	// ReplaceSelfToken deletes every self token of rec.OwnerID and inserts
	// rec, atomically.
	ReplaceSelfToken(ctx context.Context, rec TokenRecord) (TokenRecord, error)

	// ConsumeToken marks the matching unused row as used in one conditional
	// update and returns it. When nothing was updated it returns
	// ErrTokenNotFound, ErrTokenUsed or ErrTokenExpired. With the latter two
	// the record carries the ID and OwnerID of the row that was matched.
	ConsumeToken(ctx context.Context, req ConsumeRequest) (TokenRecord, error)

	// ActiveSelfToken returns the newest unused, unexpired self token of
	// ownerID, or ErrTokenNotFound.
	ActiveSelfToken(ctx context.Context, ownerID string, now time.Time) (TokenRecord, error)

	CountActiveTokens(ctx context.Context, now time.Time) (int64, error)

	// PruneExpired deletes rows whose expiry is before cutoff.
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
