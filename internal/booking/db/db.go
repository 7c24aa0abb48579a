package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"cinema-ticketing/internal/database"
	"cinema-ticketing/internal/models"
)

// DB is the ticket storage layer. Seat allocation correctness lives here:
// InsertTicket relies on the composite unique constraint, so two workers
// racing for the same seat cannot both win regardless of what they read
// beforehand.
type DB struct {
	Bun bun.IDB
}

// InTx runs fn against a DB bound to a single transaction. Nested calls
// join the transaction already in progress.
func (d *DB) InTx(ctx context.Context, fn func(tx *DB) error) error {
	bdb, ok := d.Bun.(*bun.DB)
	if !ok {
		return fn(d)
	}
	return bdb.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(&DB{Bun: tx})
	})
}

// ---------------- SESSIONS ----------------

// GetTicketSession loads the session a booking targets, with its movie
// and hall. A session whose movie or hall can no longer be resolved is
// structurally broken and rejected here, before any write.
func (d *DB) GetTicketSession(ctx context.Context, id string) (*models.MovieSession, error) {
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
	if session.Movie == nil || session.Hall == nil {
		return nil, fmt.Errorf("session %s references a missing movie or hall", id)
	}
	return &session, nil
}

// ---------------- TICKETS ----------------

// InsertTicket writes a new ticket. A violation of the seat-slot
// constraint means another booking won the race and maps to
// ErrSeatNotAvailable; any other failure propagates as-is.
func (d *DB) InsertTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err, "row_number") || database.IsUniqueViolation(err, "seat_number") {
			return models.ErrSeatNotAvailable
		}
		return err
	}
	return nil
}

// GetTicket loads a ticket with its session, and the session's movie and
// hall, which the payment-window check needs.
func (d *DB) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Relation("MovieSession").
		Relation("MovieSession.Movie").
		Relation("MovieSession.Hall").
		Relation("Customer").
		Where("ticket.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// MarkPaid sets paid_at if and only if the ticket is still unpaid. The
// conditional update makes Pay exactly-once under concurrency: a second
// caller matches zero rows.
func (d *DB) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("paid_at = ?", paidAt).
		Where("id = ?", id).
		Where("paid_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// DeleteUnpaid removes the ticket only while it is unpaid, freeing its
// seat slot. Returns false when nothing matched (missing or already paid).
func (d *DB) DeleteUnpaid(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.Ticket)(nil)).
		Where("id = ?", id).
		Where("paid_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// OrderNumberExists backs the bounded-retry uniqueness check during
// order-number generation.
func (d *DB) OrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("order_number = ?", orderNumber).
		Exists(ctx)
}

func (d *DB) ListTicketsBySession(ctx context.Context, sessionID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("movie_session_id = ?", sessionID).
		Order("row_number ASC", "seat_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) ListTicketsByCustomer(ctx context.Context, customerID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Relation("MovieSession").
		Where("ticket.customer_id = ?", customerID).
		Order("ticket.booked_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// ---------------- CUSTOMERS ----------------

func (d *DB) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	_, err := d.Bun.NewInsert().Model(customer).Exec(ctx)
	return err
}

func (d *DB) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	err := d.Bun.NewSelect().
		Model(&customer).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
