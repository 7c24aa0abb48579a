package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"cinema-ticketing/internal/models"
)

// DB is the storage layer for the hall catalog, the movie repertoire and
// the session timeline. Bun is either the shared *bun.DB or, inside
// InTx, the transaction it was rebound to.
type DB struct {
	Bun bun.IDB
}

// InTx runs fn against a DB bound to a single transaction, so a
// validate-then-commit sequence is visible all at once or not at all.
// Nested calls join the transaction already in progress.
func (d *DB) InTx(ctx context.Context, fn func(tx *DB) error) error {
	bdb, ok := d.Bun.(*bun.DB)
	if !ok {
		return fn(d)
	}
	return bdb.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(&DB{Bun: tx})
	})
}

// ---------------- HALLS ----------------

func (d *DB) CreateHall(ctx context.Context, hall *models.Hall) error {
	_, err := d.Bun.NewInsert().Model(hall).Exec(ctx)
	return err
}

func (d *DB) GetHall(ctx context.Context, id string) (*models.Hall, error) {
	var hall models.Hall
	err := d.Bun.NewSelect().
		Model(&hall).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrHallNotFound
	}
	if err != nil {
		return nil, err
	}
	return &hall, nil
}

func (d *DB) ListHalls(ctx context.Context) ([]models.Hall, error) {
	var halls []models.Hall
	err := d.Bun.NewSelect().
		Model(&halls).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return halls, nil
}

func (d *DB) UpdateHallName(ctx context.Context, hall *models.Hall) error {
	_, err := d.Bun.NewUpdate().
		Model(hall).
		Column("name").
		Where("id = ?", hall.ID).
		Exec(ctx)
	return err
}

func (d *DB) DeleteHall(ctx context.Context, id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Hall)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (d *DB) CountSessionsByHall(ctx context.Context, hallID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.MovieSession)(nil)).
		Where("hall_id = ?", hallID).
		Count(ctx)
}

// ---------------- MOVIES ----------------

func (d *DB) CreateMovie(ctx context.Context, movie *models.Movie) error {
	_, err := d.Bun.NewInsert().Model(movie).Exec(ctx)
	return err
}

func (d *DB) GetMovie(ctx context.Context, id string) (*models.Movie, error) {
	var movie models.Movie
	err := d.Bun.NewSelect().
		Model(&movie).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrMovieNotFound
	}
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

func (d *DB) UpdateMovie(ctx context.Context, movie *models.Movie) error {
	_, err := d.Bun.NewUpdate().
		Model(movie).
		Column("name", "duration").
		Where("id = ?", movie.ID).
		Exec(ctx)
	return err
}

func (d *DB) DeleteMovie(ctx context.Context, id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Movie)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (d *DB) ListMovies(ctx context.Context) ([]models.Movie, error) {
	var movies []models.Movie
	err := d.Bun.NewSelect().
		Model(&movies).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return movies, nil
}

func (d *DB) CountSessionsByMovie(ctx context.Context, movieID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.MovieSession)(nil)).
		Where("movie_id = ?", movieID).
		Count(ctx)
}

// ---------------- SESSIONS ----------------

func (d *DB) CreateSession(ctx context.Context, session *models.MovieSession) error {
	_, err := d.Bun.NewInsert().Model(session).Exec(ctx)
	return err
}

// GetSession loads a session together with its movie and hall, which the
// duration and capacity computations need.
func (d *DB) GetSession(ctx context.Context, id string) (*models.MovieSession, error) {
	var session models.MovieSession
	err := d.Bun.NewSelect().
		Model(&session).
		Relation("Movie").
		Relation("Hall").
		Where("movie_session.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DB) UpdateSession(ctx context.Context, session *models.MovieSession) error {
	_, err := d.Bun.NewUpdate().
		Model(session).
		Column("movie_id", "hall_id", "date", "starts_at", "ticket_cost", "advertise_duration").
		Where("id = ?", session.ID).
		Exec(ctx)
	return err
}

func (d *DB) DeleteSession(ctx context.Context, id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.MovieSession)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (d *DB) ListSessions(ctx context.Context) ([]models.MovieSession, error) {
	var sessions []models.MovieSession
	err := d.Bun.NewSelect().
		Model(&sessions).
		Relation("Movie").
		Relation("Hall").
		Order("date ASC", "starts_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// SessionsInHallBetween returns the overlap candidates: sessions in the
// hall whose stored date lies within [from, to], excluding excludeID when
// an existing session is being updated. Movie and hall come loaded so the
// caller can compute each candidate's interval.
func (d *DB) SessionsInHallBetween(ctx context.Context, hallID string, from, to time.Time, excludeID string) ([]models.MovieSession, error) {
	var sessions []models.MovieSession
	q := d.Bun.NewSelect().
		Model(&sessions).
		Relation("Movie").
		Relation("Hall").
		Where("movie_session.hall_id = ?", hallID).
		Where("movie_session.date >= ?", from).
		Where("movie_session.date <= ?", to)
	if excludeID != "" {
		q = q.Where("movie_session.id != ?", excludeID)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("load overlap candidates: %w", err)
	}
	return sessions, nil
}

// CountTicketsBySession backs the has-bookings guard and the seat
// occupancy accessors.
func (d *DB) CountTicketsBySession(ctx context.Context, sessionID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("movie_session_id = ?", sessionID).
		Count(ctx)
}
