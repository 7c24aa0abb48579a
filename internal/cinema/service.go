// Package cinema is the session scheduler: it owns the hall catalog, the
// movie repertoire and the placement of movie sessions into hall
// timelines, including the overlap and referential guards.
package cinema

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cinema-ticketing/internal/cinema/db"
	"cinema-ticketing/internal/clock"
	"cinema-ticketing/internal/database"
	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/models"
)

// Config carries the scheduling rules that come from configuration.
type Config struct {
	// Daily window session starts must fall into.
	EarliestStart models.TimeOfDay
	LatestStart   models.TimeOfDay
	// Pre-show ad block applied when the caller does not set one.
	DefaultAdvertiseDuration int
}

// EventPublisher streams scheduling events; failures are logged and never
// fail the operation itself.
type EventPublisher interface {
	PublishSessionScheduled(session *models.MovieSession) error
}

type Service struct {
	DB     *db.DB
	Clock  clock.Clock
	Config Config
	Logger *logger.Logger
	Events EventPublisher
}

func NewService(database *db.DB, clk clock.Clock, cfg Config, log *logger.Logger, events EventPublisher) *Service {
	return &Service{DB: database, Clock: clk, Config: cfg, Logger: log, Events: events}
}

// SessionParams is the caller's input to ScheduleSession/UpdateSession.
// AdvertiseDuration nil means "use the configured default".
type SessionParams struct {
	HallID            string
	MovieID           string
	Date              time.Time
	StartsAt          models.TimeOfDay
	TicketCost        float64
	AdvertiseDuration *int
}

// ---------------- HALLS ----------------

func (s *Service) CreateHall(ctx context.Context, name string, rowsNumber, seatsPerRow, cleaningDuration int) (*models.Hall, error) {
	if cleaningDuration == 0 {
		cleaningDuration = models.DefaultCleaningDuration
	}

	hall := &models.Hall{
		ID:               uuid.New().String(),
		Name:             name,
		RowsNumber:       rowsNumber,
		SeatsPerRow:      seatsPerRow,
		CleaningDuration: cleaningDuration,
		CreatedAt:        s.Clock.Now(),
	}
	if verr := hall.Validate(); verr != nil {
		return nil, verr
	}

	if err := s.DB.CreateHall(ctx, hall); err != nil {
		if database.IsUniqueViolation(err, "name") {
			verr := models.NewValidationError()
			verr.Add("name", "a hall with this name already exists")
			return nil, verr
		}
		return nil, fmt.Errorf("create hall: %w", err)
	}

	s.Logger.Info("CINEMA", fmt.Sprintf("Hall %q created (%dx%d seats)", hall.Name, rowsNumber, seatsPerRow))
	return hall, nil
}

func (s *Service) GetHall(ctx context.Context, id string) (*models.Hall, error) {
	return s.DB.GetHall(ctx, id)
}

func (s *Service) ListHalls(ctx context.Context) ([]models.Hall, error) {
	return s.DB.ListHalls(ctx)
}

// RenameHall changes the hall's name. Geometry and cleaning duration are
// immutable after creation; sessions and tickets reference the hall by ID,
// so a rename is always safe.
func (s *Service) RenameHall(ctx context.Context, id, name string) (*models.Hall, error) {
	hall, err := s.DB.GetHall(ctx, id)
	if err != nil {
		return nil, err
	}

	hall.Name = name
	if verr := hall.Validate(); verr != nil {
		return nil, verr
	}
	if err := s.DB.UpdateHallName(ctx, hall); err != nil {
		if database.IsUniqueViolation(err, "name") {
			verr := models.NewValidationError()
			verr.Add("name", "a hall with this name already exists")
			return nil, verr
		}
		return nil, fmt.Errorf("rename hall: %w", err)
	}
	return hall, nil
}

// DeleteHall removes a hall unless any session still references it. The
// guard runs in the same transaction as the delete.
func (s *Service) DeleteHall(ctx context.Context, id string) error {
	return s.DB.InTx(ctx, func(tx *db.DB) error {
		if _, err := tx.GetHall(ctx, id); err != nil {
			return err
		}
		count, err := tx.CountSessionsByHall(ctx, id)
		if err != nil {
			return fmt.Errorf("count sessions for hall %s: %w", id, err)
		}
		if count > 0 {
			return models.ErrHallScheduled
		}
		return tx.DeleteHall(ctx, id)
	})
}

// ---------------- MOVIES ----------------

func (s *Service) CreateMovie(ctx context.Context, name string, duration int) (*models.Movie, error) {
	movie := &models.Movie{
		ID:        uuid.New().String(),
		Name:      name,
		Duration:  duration,
		CreatedAt: s.Clock.Now(),
	}
	if verr := movie.Validate(); verr != nil {
		return nil, verr
	}

	if err := s.DB.CreateMovie(ctx, movie); err != nil {
		if database.IsUniqueViolation(err, "name") {
			verr := models.NewValidationError()
			verr.Add("name", "a movie with this name already exists")
			return nil, verr
		}
		return nil, fmt.Errorf("create movie: %w", err)
	}
	return movie, nil
}

func (s *Service) GetMovie(ctx context.Context, id string) (*models.Movie, error) {
	return s.DB.GetMovie(ctx, id)
}

func (s *Service) ListMovies(ctx context.Context) ([]models.Movie, error) {
	return s.DB.ListMovies(ctx)
}

// UpdateMovie fails with ErrMovieScheduled while any session references
// the movie: a scheduled movie's runtime is load-bearing for the hall
// timeline and must not shift under existing sessions.
func (s *Service) UpdateMovie(ctx context.Context, id, name string, duration int) (*models.Movie, error) {
	var updated *models.Movie
	err := s.DB.InTx(ctx, func(tx *db.DB) error {
		movie, err := tx.GetMovie(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.CountSessionsByMovie(ctx, id)
		if err != nil {
			return fmt.Errorf("count sessions for movie %s: %w", id, err)
		}
		if count > 0 {
			return models.ErrMovieScheduled
		}

		movie.Name = name
		movie.Duration = duration
		if verr := movie.Validate(); verr != nil {
			return verr
		}
		if err := tx.UpdateMovie(ctx, movie); err != nil {
			if database.IsUniqueViolation(err, "name") {
				verr := models.NewValidationError()
				verr.Add("name", "a movie with this name already exists")
				return verr
			}
			return err
		}
		updated = movie
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteMovie(ctx context.Context, id string) error {
	return s.DB.InTx(ctx, func(tx *db.DB) error {
		if _, err := tx.GetMovie(ctx, id); err != nil {
			return err
		}
		count, err := tx.CountSessionsByMovie(ctx, id)
		if err != nil {
			return fmt.Errorf("count sessions for movie %s: %w", id, err)
		}
		if count > 0 {
			return models.ErrMovieScheduled
		}
		return tx.DeleteMovie(ctx, id)
	})
}

// ---------------- SESSIONS ----------------

// ScheduleSession validates and places a new session into the hall's
// timeline. Validation and the insert run in one transaction:
// validate-then-commit, never commit-then-rollback.
func (s *Service) ScheduleSession(ctx context.Context, params SessionParams) (*models.MovieSession, error) {
	session := &models.MovieSession{
		ID:         uuid.New().String(),
		MovieID:    params.MovieID,
		HallID:     params.HallID,
		Date:       normalizeDate(params.Date),
		StartsAt:   params.StartsAt,
		TicketCost: params.TicketCost,
		CreatedAt:  s.Clock.Now(),
	}
	if params.AdvertiseDuration != nil {
		session.AdvertiseDuration = *params.AdvertiseDuration
	} else {
		session.AdvertiseDuration = s.Config.DefaultAdvertiseDuration
	}

	err := s.DB.InTx(ctx, func(tx *db.DB) error {
		if err := s.validateSession(ctx, tx, session); err != nil {
			return err
		}
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("CINEMA", fmt.Sprintf("Session %s scheduled in hall %s at %s %s",
		session.ID, session.HallID, session.Date.Format("2006-01-02"), session.StartsAt))
	s.publishScheduled(session)
	return session, nil
}

// UpdateSession re-validates the modified session against the hall
// timeline (excluding itself) and fails with ErrSessionHasBookings once
// any ticket references it.
func (s *Service) UpdateSession(ctx context.Context, id string, params SessionParams) (*models.MovieSession, error) {
	var updated *models.MovieSession
	err := s.DB.InTx(ctx, func(tx *db.DB) error {
		session, err := tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.CountTicketsBySession(ctx, id)
		if err != nil {
			return fmt.Errorf("count tickets for session %s: %w", id, err)
		}
		if count > 0 {
			return models.ErrSessionHasBookings
		}

		session.MovieID = params.MovieID
		session.HallID = params.HallID
		session.Date = normalizeDate(params.Date)
		session.StartsAt = params.StartsAt
		session.TicketCost = params.TicketCost
		if params.AdvertiseDuration != nil {
			session.AdvertiseDuration = *params.AdvertiseDuration
		}
		session.Movie, session.Hall = nil, nil

		if err := s.validateSession(ctx, tx, session); err != nil {
			return err
		}
		if err := tx.UpdateSession(ctx, session); err != nil {
			return err
		}
		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.DB.InTx(ctx, func(tx *db.DB) error {
		if _, err := tx.GetSession(ctx, id); err != nil {
			return err
		}
		count, err := tx.CountTicketsBySession(ctx, id)
		if err != nil {
			return fmt.Errorf("count tickets for session %s: %w", id, err)
		}
		if count > 0 {
			return models.ErrSessionHasBookings
		}
		return tx.DeleteSession(ctx, id)
	})
}

func (s *Service) GetSession(ctx context.Context, id string) (*models.MovieSession, error) {
	return s.DB.GetSession(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context) ([]models.MovieSession, error) {
	return s.DB.ListSessions(ctx)
}

// SeatSummary reports the session's occupancy: booked tickets and the
// seats still free in the hall.
func (s *Service) SeatSummary(ctx context.Context, id string) (booked, empty int, err error) {
	session, err := s.DB.GetSession(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	booked, err = s.DB.CountTicketsBySession(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	return booked, session.Hall.Capacity() - booked, nil
}

// validateSession checks the daily start window and the hall timeline,
// resolving the movie and hall the session references. It fills in the
// session's Movie/Hall relations as a side effect.
func (s *Service) validateSession(ctx context.Context, tx *db.DB, session *models.MovieSession) error {
	verr := models.NewValidationError()

	movie, err := tx.GetMovie(ctx, session.MovieID)
	if err != nil {
		return err
	}
	hall, err := tx.GetHall(ctx, session.HallID)
	if err != nil {
		return err
	}
	session.Movie, session.Hall = movie, hall

	if session.StartsAt.Before(s.Config.EarliestStart) || session.StartsAt.After(s.Config.LatestStart) {
		verr.Add("starts_at", fmt.Sprintf("must be between %s and %s", s.Config.EarliestStart, s.Config.LatestStart))
	}
	if session.TicketCost < 0 {
		verr.Add("ticket_cost", "must not be negative")
	}
	if session.AdvertiseDuration < 0 {
		verr.Add("advertise_duration", "must not be negative")
	}
	if v := verr.OrNil(); v != nil {
		return v
	}

	// Candidate window: every date the session touches, plus the preceding
	// day, so a neighbour stored under yesterday's date that runs past
	// midnight is still considered.
	from := normalizeDate(session.StartTime().AddDate(0, 0, -1))
	to := normalizeDate(session.EndTime())
	others, err := tx.SessionsInHallBetween(ctx, session.HallID, from, to, session.ID)
	if err != nil {
		return err
	}
	for i := range others {
		if session.Overlaps(&others[i]) {
			return models.ErrSessionOverlaps
		}
	}
	return nil
}

func (s *Service) publishScheduled(session *models.MovieSession) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishSessionScheduled(session); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish session scheduled event: %v", err))
	}
}

func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
