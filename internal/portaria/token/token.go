// Package token builds and parses the compact payloads embedded in access
// QR codes, and generates the bearer secrets they refer to.
package token

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Kind discriminates the subject a token was issued for.
type Kind string

const (
	KindSelf    Kind = "self"
	KindClient  Kind = "client"
	KindVisitor Kind = "visitor"
	KindMaster  Kind = "master"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSelf, KindClient, KindVisitor:
		return true
	}
	return false
}

const (
	// FormatVersion is written to every payload as "v".
	FormatVersion = 1

	// DigestLength is the number of hex characters of the digest carried in
	// a payload and used as the store lookup key.
	DigestLength = 16

	secretRandomLength = 16
	secretAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	tagClient  = "cliente"
	tagVisitor = "visitante"
)

var (
	ErrUnsupportedKind = errors.New("token kind has no payload")
	ErrInvalidPayload  = errors.New("payload is not a JSON object")
)

// GenerateSecret returns an unguessable bearer value: the current time in
// milliseconds joined to 16 random alphanumerics, base64url encoded without
// padding.
func GenerateSecret() (string, error) {
	random, err := gonanoid.Generate(secretAlphabet, secretRandomLength)
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	combined := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), random)
	return base64.RawURLEncoding.EncodeToString([]byte(combined)), nil
}

// Digest derives the lookup key for secret. It is deterministic, so it can
// be recomputed from the secret at any time. Collisions are not defended
// against.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:DigestLength]
}

// Extra carries the subject-specific payload fields.
type Extra struct {
	Name     string // client or visitor display name
	Invoice  string // client invoice number
	IssuerID string // vendor (client) or creator (visitor)
}

// Field order of these structs is the wire layout.
type selfPayload struct {
	Hash    string `json:"h"`
	Expiry  int64  `json:"e"`
	Version int    `json:"v"`
}

type clientPayload struct {
	Hash    string `json:"h"`
	Name    string `json:"n"`
	Invoice string `json:"nf"`
	Tag     string `json:"t"`
	Version int    `json:"v"`
	Vendor  string `json:"vendedor"`
}

type visitorPayload struct {
	Hash    string `json:"h"`
	Name    string `json:"n"`
	Tag     string `json:"t"`
	Version int    `json:"v"`
	Creator string `json:"creator"`
	Expiry  int64  `json:"e"`
}

// Encode renders the QR payload for kind. Client payloads carry no expiry.
func Encode(kind Kind, digest string, expiresAt time.Time, extra Extra) (string, error) {
	h := truncate(digest, DigestLength)

	var v any
	switch kind {
	case KindSelf:
		v = selfPayload{Hash: h, Expiry: expiresAt.Unix(), Version: FormatVersion}
	case KindClient:
		v = clientPayload{
			Hash:    h,
			Name:    extra.Name,
			Invoice: extra.Invoice,
			Tag:     tagClient,
			Version: FormatVersion,
			Vendor:  extra.IssuerID,
		}
	case KindVisitor:
		v = visitorPayload{
			Hash:    h,
			Name:    extra.Name,
			Tag:     tagVisitor,
			Version: FormatVersion,
			Creator: extra.IssuerID,
			Expiry:  expiresAt.Unix(),
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

// Payload is the decoded form of any non-master QR payload.
type Payload struct {
	Hash    string
	Expiry  int64 // Unix seconds; 0 when absent
	Name    string
	Invoice string
	Tag     string
	Version int
	Vendor  string
	Creator string
}

// Parse decodes a scanned payload. Anything other than a JSON object is
// rejected with ErrInvalidPayload. Field types are read leniently: numbers
// may be floats or numeric strings, and a scalar where text is expected is
// used in its JSON spelling, so odd payloads reach the lookup and fail
// there instead.
func Parse(raw string) (Payload, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Payload{}, ErrInvalidPayload
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Payload{}, fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}

	return Payload{
		Hash:    text(fields["h"]),
		Expiry:  seconds(fields["e"]),
		Name:    text(fields["n"]),
		Invoice: text(fields["nf"]),
		Tag:     text(fields["t"]),
		Version: int(seconds(fields["v"])),
		Vendor:  text(fields["vendedor"]),
		Creator: text(fields["creator"]),
	}, nil
}

func text(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// seconds reads an integer field, truncating fractions. Unparseable values
// count as absent.
func seconds(v any) int64 {
	var s string
	switch v := v.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	default:
		return 0
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// Kind reports the token kind from the "t" tag. Untagged payloads are self
// tokens.
func (p Payload) Kind() Kind {
	switch p.Tag {
	case tagVisitor:
		return KindVisitor
	case tagClient:
		return KindClient
	default:
		return KindSelf
	}
}

// ExpiredAt reports whether the embedded expiry is set and already past.
func (p Payload) ExpiredAt(now time.Time) bool {
	return p.Expiry != 0 && p.Expiry < now.Unix()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var masterCodes = []string{
	"MASTER_ACCESS_2025",
	"R3_MASTER_KEY",
	"ADMIN_OVERRIDE_ACCESS",
}

// MasterCodes returns the fixed override credentials. They are never
// persisted, never expire and are never consumed.
func MasterCodes() []string {
	out := make([]string, len(masterCodes))
	copy(out, masterCodes)
	return out
}

// IsMasterCode compares raw, whitespace-trimmed, against the master codes.
// The comparison is case-sensitive.
func IsMasterCode(raw string) bool {
	raw = strings.TrimSpace(raw)
	for _, c := range masterCodes {
		if raw == c {
			return true
		}
	}
	return false
}
