// Package subscription defines the subscription tier and its persisted form.
//
// Tiers change only through explicit upgrade and downgrade; there is no
// expiry, trial or payment-verified state.
package subscription

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/types"
)

// Tier is the user's subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// IsPremium reports whether t is the premium tier.
func (t Tier) IsPremium() bool { return t == TierPremium }

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t == TierFree || t == TierPremium }

// String implements fmt.Stringer.
func (t Tier) String() string { return string(t) }

// ParseTier parses a tier name. Bare boolean flags ("true"/"false") written by
// older clients are accepted as premium/free.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "premium", "true":
		return TierPremium, true
	case "free", "false":
		return TierFree, true
	default:
		return TierFree, false
	}
}

// Change records a tier transition.
type Change struct {
	ID   id.TierChangeID `json:"id"`
	From Tier            `json:"from"`
	To   Tier            `json:"to"`
	At   time.Time       `json:"at"`
}

// IsUpgrade reports whether the change moved to premium.
func (c Change) IsUpgrade() bool { return !c.From.IsPremium() && c.To.IsPremium() }

// CodecVersion tags the persisted tier layout.
const CodecVersion = 1

// Record is the persisted tier value.
type Record struct {
	types.Entity
	Version int  `json:"v"`
	Tier    Tier `json:"tier"`
}

// EncodeTier serializes t, stamped at now.
func EncodeTier(t Tier, now time.Time) (string, error) {
	rec := Record{Version: CodecVersion, Tier: t}
	rec.Touch(now)
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeTier parses a persisted tier. Empty or malformed input yields
// TierFree and ok=false.
func DecodeTier(raw string) (Tier, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TierFree, false
	}
	if raw[0] != '{' {
		return ParseTier(raw)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return TierFree, false
	}
	if rec.Version != 0 && rec.Version != CodecVersion {
		return TierFree, false
	}
	if !rec.Tier.Valid() {
		return TierFree, false
	}
	return rec.Tier, true
}
