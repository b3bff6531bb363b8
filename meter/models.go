// Package meter implements the daily usage ledger: per-day counters of chat
// messages and privileged actions that reset themselves when the local date
// changes.
package meter

import (
	"time"

	"github.com/xraph/entitle/id"
)

// Ledger holds the consumption counters for a single calendar day.
type Ledger struct {
	// Date is the local calendar day the counters apply to (YYYY-MM-DD).
	Date         string `json:"date"`
	MessageCount int64  `json:"messages"`
	ActionCount  int64  `json:"actions"`
}

// Kind is the resource a unit of consumption draws from.
type Kind string

const (
	KindMessage Kind = "message"
	KindAction  Kind = "action"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindMessage || k == KindAction
}

// UsageEvent describes one recorded unit of consumption.
type UsageEvent struct {
	ID        id.UsageEventID `json:"id"`
	Kind      Kind            `json:"kind"`
	Feature   string          `json:"feature,omitempty"`
	Date      string          `json:"date"`
	Count     int64           `json:"count"`
	Timestamp time.Time       `json:"timestamp"`
}
