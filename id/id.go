// Package id defines TypeID-based identifiers for entitle records.
//
// Usage events, tier changes and audit records each carry an ID of the form
// "prefix_suffix". The suffix is UUIDv7-based, so IDs sort by creation time.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the record type encoded in an ID.
type Prefix string

const (
	PrefixUsageEvent Prefix = "uevt"
	PrefixTierChange Prefix = "tchg"
	PrefixAudit      Prefix = "aud"
)

// ID is a prefix-qualified TypeID. The zero value is Nil.
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Nil is the empty ID.
var Nil ID

// Aliases documenting which prefix a field carries.
type (
	UsageEventID = ID
	TierChangeID = ID
	AuditID      = ID
)

// New generates an ID with prefix. An invalid prefix is a programming error
// and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", prefix, err))
	}
	return ID{tid: tid, set: true}
}

// NewUsageEventID returns a fresh "uevt" ID.
func NewUsageEventID() ID { return New(PrefixUsageEvent) }

// NewTierChangeID returns a fresh "tchg" ID.
func NewTierChangeID() ID { return New(PrefixTierChange) }

// NewAuditID returns a fresh "aud" ID.
func NewAuditID() ID { return New(PrefixAudit) }

// Parse decodes s. When want is given, the prefix must be one of them.
func Parse(s string, want ...Prefix) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	parsed := ID{tid: tid, set: true}
	if len(want) == 0 {
		return parsed, nil
	}
	for _, p := range want {
		if parsed.Prefix() == p {
			return parsed, nil
		}
	}
	return Nil, fmt.Errorf("id: parse %q: unexpected prefix %q", s, parsed.Prefix())
}

// String returns the TypeID text, or "" for Nil.
func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the record type, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the empty ID.
func (i ID) IsNil() bool { return !i.set }

// MarshalText implements encoding.TextMarshaler. Nil encodes as "".
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text decodes to Nil.
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
