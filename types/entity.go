// Package types provides common types shared by entitle records.
package types

import "time"

// Entity carries the timestamps of a persisted record.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an Entity stamped with t (UTC).
func NewEntity(t time.Time) Entity {
	t = t.UTC()
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// Touch sets UpdatedAt to t (UTC). A zero CreatedAt is filled in as well.
func (e *Entity) Touch(t time.Time) {
	t = t.UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t
	}
	e.UpdatedAt = t
}

// IsZero reports whether the record has never been stamped.
func (e Entity) IsZero() bool {
	return e.CreatedAt.IsZero() && e.UpdatedAt.IsZero()
}
