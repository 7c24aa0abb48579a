package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Customer is the identity a ticket is booked for. It arrives from the
// identity provider; the booking engine only checks that it is
// authenticated and structurally valid.
type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID        string    `bun:"id,pk" json:"id"`
	Email     string    `bun:"email,unique,notnull" json:"email"`
	Active    bool      `bun:"active,notnull" json:"active"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// IsAuthenticated reports whether the customer carries a resolved identity.
func (c *Customer) IsAuthenticated() bool {
	return c != nil && c.ID != ""
}

// Valid reports whether the identity fields themselves check out.
func (c *Customer) Valid() bool {
	if c == nil || !c.Active {
		return false
	}
	return strings.Contains(c.Email, "@")
}
