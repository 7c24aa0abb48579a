package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Movie holds the repertoire entry a session screens. Duration is the
// runtime in minutes, excluding ads and hall cleaning.
type Movie struct {
	bun.BaseModel `bun:"table:movies"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,unique,notnull" json:"name"`
	Duration  int       `bun:"duration,notnull" json:"duration"` // minutes
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (m *Movie) Validate() *ValidationError {
	v := NewValidationError()
	if m.Name == "" {
		v.Add("name", "must not be blank")
	}
	if m.Duration < 1 {
		v.Add("duration", "must be a positive integer")
	}
	return v.OrNil()
}
