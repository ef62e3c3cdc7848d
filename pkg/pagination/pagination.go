// Package pagination implements keyset cursors over (timestamp, id) ordered
// listings.
package pagination

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor points just past the last row of the previous page.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting zero values.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer asks for one extra row so callers can tell whether another
// page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func Encode(c Cursor) string {
	raw := c.At.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor produced by Encode. An empty value yields nil.
func Decode(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, invalid(err)
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, invalid(err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, invalid(err)
	}
	return &Cursor{At: ts.UTC(), ID: parsed}, nil
}

func invalid(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
}
