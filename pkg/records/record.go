// Package records reads and appends the persisted connection collections.
//
// A collection is a JSON document {"content": [record, ...]} stored per
// (tenant, subject, platform). Existence checks fail open: a missing, empty
// or malformed document is treated as an empty collection, so an unreadable
// store can only cause a duplicate write, never a silently dropped record.
package records

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Sternrassler/connsync/internal/fsutil"
)

// Token is an opaque upstream value such as created_at.
// It decodes from a JSON string or number. Integer tokens encode as JSON
// numbers, the form upstream sends them in; anything else encodes as a string.
type Token string

// MarshalJSON implements json.Marshaler.
func (t Token) MarshalJSON() ([]byte, error) {
	if isInteger(string(t)) {
		return []byte(t), nil
	}
	return json.Marshal(string(t))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Token) UnmarshalJSON(data []byte) error {
	*t = ParseToken(data)
	return nil
}

// ParseToken renders a raw upstream JSON value as a token. Strings are taken
// verbatim, numbers by their decimal text; null, zero, booleans and composite
// values yield the empty token.
func ParseToken(raw json.RawMessage) Token {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return Token(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		if f, err := strconv.ParseFloat(n.String(), 64); err == nil && f == 0 {
			return ""
		}
		return Token(n.String())
	default:
		return ""
	}
}

// isInteger reports whether s is a canonical decimal integer literal.
func isInteger(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" || s[0] == '0' {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Record is one captured connection.
type Record struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Headline  string `json:"headline"`
	CreatedAt Token  `json:"created_at"`
}

// Key returns the identity key of the record.
func (r Record) Key() Key {
	return Key{CreatedAt: string(r.CreatedAt), FirstName: r.FirstName}
}

// Key is the weak identity used for deduplication: two records are the same
// iff both fields match exactly.
type Key struct {
	CreatedAt string
	FirstName string
}

// String returns a stable single-string form of the key.
func (k Key) String() string {
	return k.CreatedAt + "\x1f" + k.FirstName
}

// Scope names one persisted collection.
type Scope struct {
	Tenant   string
	Subject  string
	Platform string
}

// Validate checks that every part can be used as a path segment.
func (s Scope) Validate() error {
	if err := fsutil.CheckSegment("tenant", s.Tenant); err != nil {
		return err
	}
	if err := fsutil.CheckSegment("subject", s.Subject); err != nil {
		return err
	}
	return fsutil.CheckSegment("platform", s.Platform)
}
