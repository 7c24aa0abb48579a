package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Hall is a capacity descriptor for a screening room. It is referenced
// by movie sessions and never owned by them.
type Hall struct {
	bun.BaseModel `bun:"table:halls"`

	ID               string    `bun:"id,pk" json:"id"`
	Name             string    `bun:"name,unique,notnull" json:"name"`
	RowsNumber       int       `bun:"rows_number,notnull" json:"rows_number"`
	SeatsPerRow      int       `bun:"seats_per_row,notnull" json:"seats_per_row"`
	CleaningDuration int       `bun:"cleaning_duration,notnull" json:"cleaning_duration"` // minutes
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// DefaultCleaningDuration is applied when a hall is created without one.
const DefaultCleaningDuration = 15

func (h *Hall) Capacity() int {
	return h.RowsNumber * h.SeatsPerRow
}

// Validate reports all field problems at once.
func (h *Hall) Validate() *ValidationError {
	v := NewValidationError()
	if h.Name == "" {
		v.Add("name", "must not be blank")
	}
	if h.RowsNumber < 1 {
		v.Add("rows_number", "must be a positive integer")
	}
	if h.SeatsPerRow < 1 {
		v.Add("seats_per_row", "must be a positive integer")
	}
	if h.CleaningDuration < 1 {
		v.Add("cleaning_duration", "must be a positive integer")
	}
	return v.OrNil()
}
