package entitle

import "github.com/xraph/entitle/id"

// ID is the identifier type for usage events, tier changes and audit records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
