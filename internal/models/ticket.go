package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket is one booked seat in one session. The composite unique
// constraint on (movie_session_id, row_number, seat_number) is the seat
// allocation contract: the storage engine, not a pre-check, decides who
// wins a concurrent booking race.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID             string     `bun:"id,pk" json:"id"`
	MovieSessionID string     `bun:"movie_session_id,notnull,unique:seat_slot" json:"movie_session_id"`
	CustomerID     string     `bun:"customer_id,notnull" json:"customer_id"`
	RowNumber      int        `bun:"row_number,notnull,unique:seat_slot" json:"row_number"`
	SeatNumber     int        `bun:"seat_number,notnull,unique:seat_slot" json:"seat_number"`
	OrderNumber    string     `bun:"order_number,unique,notnull" json:"order_number"`
	Cost           float64    `bun:"cost,notnull" json:"cost"`
	BookedAt       time.Time  `bun:"booked_at,notnull" json:"booked_at"`
	PaidAt         *time.Time `bun:"paid_at,nullzero" json:"paid_at,omitempty"`

	MovieSession *MovieSession `bun:"rel:belongs-to,join:movie_session_id=id" json:"movie_session,omitempty"`
	Customer     *Customer     `bun:"rel:belongs-to,join:customer_id=id" json:"customer,omitempty"`
}

func (t *Ticket) IsPaid() bool {
	return t.PaidAt != nil
}
