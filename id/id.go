// Package id defines TypeID-based identity types for catalog and payment
// entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique, and
// URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all entity types.
const (
	PrefixWork        Prefix = "work" // Monograph (the larger work)
	PrefixFormat      Prefix = "pubf" // Publication format (the pricing unit)
	PrefixFile        Prefix = "file" // Submission file
	PrefixIntent      Prefix = "pay"  // Payment intent
	PrefixEntitlement Prefix = "ent"  // Completed-purchase record
)

// ID is the primary identifier type for all entities. It wraps a TypeID
// providing a prefix-qualified, globally unique, sortable, URL-safe
// identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "pay_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// WorkID is a type-safe identifier for monographs (prefix: "work").
type WorkID = ID

// FormatID is a type-safe identifier for publication formats (prefix: "pubf").
type FormatID = ID

// FileID is a type-safe identifier for submission files (prefix: "file").
type FileID = ID

// IntentID is a type-safe identifier for payment intents (prefix: "pay").
type IntentID = ID

// EntitlementID is a type-safe identifier for entitlement records (prefix: "ent").
type EntitlementID = ID

// ──────────────────────────────────────────────────
// Convenience constructors and parsers
// ──────────────────────────────────────────────────

// NewWorkID generates a new unique work ID.
func NewWorkID() ID { return New(PrefixWork) }

// NewFormatID generates a new unique publication format ID.
func NewFormatID() ID { return New(PrefixFormat) }

// NewFileID generates a new unique file ID.
func NewFileID() ID { return New(PrefixFile) }

// NewIntentID generates a new unique payment intent ID.
func NewIntentID() ID { return New(PrefixIntent) }

// NewEntitlementID generates a new unique entitlement ID.
func NewEntitlementID() ID { return New(PrefixEntitlement) }

// ParseWorkID parses a string and validates the "work" prefix.
func ParseWorkID(s string) (ID, error) { return ParseWithPrefix(s, PrefixWork) }

// ParseFormatID parses a string and validates the "pubf" prefix.
func ParseFormatID(s string) (ID, error) { return ParseWithPrefix(s, PrefixFormat) }

// ParseFileID parses a string and validates the "file" prefix.
func ParseFileID(s string) (ID, error) { return ParseWithPrefix(s, PrefixFile) }

// ParseIntentID parses a string and validates the "pay" prefix.
func ParseIntentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixIntent) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
