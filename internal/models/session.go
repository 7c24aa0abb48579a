package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DefaultAdvertiseDuration is the pre-show ad block in minutes applied
// when a session is scheduled without an explicit value.
const DefaultAdvertiseDuration = 10

// MovieSession is one screening of a movie in a hall. It references the
// hall and the movie by identity; deleting a session never touches them.
type MovieSession struct {
	bun.BaseModel `bun:"table:movie_sessions"`

	ID                string    `bun:"id,pk" json:"id"`
	MovieID           string    `bun:"movie_id,notnull" json:"movie_id"`
	HallID            string    `bun:"hall_id,notnull" json:"hall_id"`
	Date              time.Time `bun:"date,notnull" json:"date"`
	StartsAt          TimeOfDay `bun:"starts_at,notnull" json:"starts_at"`
	TicketCost        float64   `bun:"ticket_cost,notnull" json:"ticket_cost"`
	AdvertiseDuration int       `bun:"advertise_duration,notnull" json:"advertise_duration"` // minutes
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	Movie *Movie `bun:"rel:belongs-to,join:movie_id=id" json:"movie,omitempty"`
	Hall  *Hall  `bun:"rel:belongs-to,join:hall_id=id" json:"hall,omitempty"`
}

// TotalDuration is the hall occupancy of the session: ads, the movie
// itself, and the cleaning buffer. Movie and Hall must be loaded.
func (s *MovieSession) TotalDuration() time.Duration {
	minutes := s.AdvertiseDuration + s.Movie.Duration + s.Hall.CleaningDuration
	return time.Duration(minutes) * time.Minute
}

// StartTime is the full start instant: session date combined with the
// start time of day.
func (s *MovieSession) StartTime() time.Time {
	return s.StartsAt.On(s.Date)
}

// EndTime is StartTime plus the total duration. Sessions that cross
// midnight end on the following date.
func (s *MovieSession) EndTime() time.Time {
	return s.StartTime().Add(s.TotalDuration())
}

// Overlaps applies the half-open interval test: a positive intersection
// of [start, end) ranges is an overlap, exact touching is not.
func (s *MovieSession) Overlaps(other *MovieSession) bool {
	start, end := s.StartTime(), s.EndTime()
	otherStart, otherEnd := other.StartTime(), other.EndTime()

	earlierEnd := end
	if otherEnd.Before(end) {
		earlierEnd = otherEnd
	}
	laterStart := start
	if otherStart.After(start) {
		laterStart = otherStart
	}
	return earlierEnd.Sub(laterStart) > 0
}

// IsBookingClosed reports whether the session is inside the close period:
// once less than closePeriod remains before the start, no new bookings or
// payments are accepted. Recomputed from the clock on every call.
func (s *MovieSession) IsBookingClosed(now time.Time, closePeriod time.Duration) bool {
	return s.StartTime().Sub(now) <= closePeriod
}
