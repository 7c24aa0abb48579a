// Package booking is the booking engine and ticket lifecycle: seat
// allocation under concurrent demand, payment, cancellation, and the
// deferred auto-cancellation hand-off.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cinema-ticketing/internal/booking/db"
	"cinema-ticketing/internal/clock"
	"cinema-ticketing/internal/database"
	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/models"
	"cinema-ticketing/internal/qr"
)

// Config carries the booking rules that come from configuration.
type Config struct {
	// ClosePeriod is the lead time before a session's start after which no
	// new bookings or payments are accepted.
	ClosePeriod time.Duration
	OrderNumber OrderNumberConfig
}

// Enqueuer schedules the deferred auto-cancellation. The job store is
// durable and external; firing against a missing ticket is a no-op, so
// early user cancellation never needs to dequeue anything.
type Enqueuer interface {
	Enqueue(ctx context.Context, ticketID string, runAt time.Time) error
}

// EventPublisher streams ticket lifecycle events; failures are logged and
// never fail the operation itself.
type EventPublisher interface {
	PublishTicketBooked(ticket *models.Ticket) error
	PublishTicketPaid(ticket *models.Ticket) error
	PublishTicketCanceled(ticket *models.Ticket) error
}

type Service struct {
	DB        *db.DB
	Clock     clock.Clock
	Config    Config
	Logger    *logger.Logger
	Scheduler Enqueuer
	Events    EventPublisher

	orderNumbers *OrderNumberGenerator
}

func NewService(database *db.DB, clk clock.Clock, cfg Config, log *logger.Logger, scheduler Enqueuer, events EventPublisher) *Service {
	return &Service{
		DB:           database,
		Clock:        clk,
		Config:       cfg,
		Logger:       log,
		Scheduler:    scheduler,
		Events:       events,
		orderNumbers: NewOrderNumberGenerator(cfg.OrderNumber),
	}
}

// BookTicket allocates a seat in the session for the customer. Field
// problems are collected into one ValidationError; the seat-slot unique
// constraint, not a pre-check, decides races for the same seat. On
// success a deferred cancel is enqueued for the booking close deadline —
// only after the insert is committed, so the job can never reference a
// rolled-back ticket.
func (s *Service) BookTicket(ctx context.Context, sessionID string, customer *models.Customer, rowNumber, seatNumber int) (*models.Ticket, error) {
	session, err := s.DB.GetTicketSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	verr := models.NewValidationError()
	if !customer.IsAuthenticated() {
		verr.Add("customer", "unauthenticated customer")
	} else if !customer.Valid() {
		verr.Add("customer", "invalid customer")
	}
	if rowNumber < 1 || rowNumber > session.Hall.RowsNumber {
		verr.Add("row_number", fmt.Sprintf("must be between 1 and %d", session.Hall.RowsNumber))
	}
	if seatNumber < 1 || seatNumber > session.Hall.SeatsPerRow {
		verr.Add("seat_number", fmt.Sprintf("must be between 1 and %d", session.Hall.SeatsPerRow))
	}
	if v := verr.OrNil(); v != nil {
		return nil, v
	}

	now := s.Clock.Now()
	if session.IsBookingClosed(now, s.Config.ClosePeriod) {
		return nil, models.ErrNoBookingAvailable
	}

	orderNumber, err := s.orderNumbers.Next(ctx, s.DB.OrderNumberExists)
	if err != nil {
		if errors.Is(err, models.ErrAttemptsExhausted) {
			s.Logger.Error("BOOKING", fmt.Sprintf("Order number generation exhausted retries for session %s", sessionID))
		}
		return nil, err
	}

	ticket := &models.Ticket{
		ID:             uuid.New().String(),
		MovieSessionID: session.ID,
		CustomerID:     customer.ID,
		RowNumber:      rowNumber,
		SeatNumber:     seatNumber,
		OrderNumber:    orderNumber,
		Cost:           session.TicketCost,
		BookedAt:       now,
	}

	err = s.DB.InTx(ctx, func(tx *db.DB) error {
		return tx.InsertTicket(ctx, ticket)
	})
	if err != nil {
		if database.IsUniqueViolation(err, "order_number") {
			// Another booking claimed the code between the exists check and
			// the insert. Same operator signal as exhausting the retries.
			s.Logger.Error("BOOKING", fmt.Sprintf("Order number %s collided at insert time", orderNumber))
			return nil, models.ErrAttemptsExhausted
		}
		return nil, err
	}
	ticket.MovieSession = session

	cancelAt := session.StartTime().Add(-s.Config.ClosePeriod)
	if err := s.Scheduler.Enqueue(ctx, ticket.ID, cancelAt); err != nil {
		// The booking itself stands; an unscheduled auto-cancel only means a
		// stale unpaid ticket survives until the operator notices.
		s.Logger.Error("SCHEDULER", fmt.Sprintf("Failed to enqueue auto-cancel for ticket %s: %v", ticket.ID, err))
	}

	s.Logger.Info("BOOKING", fmt.Sprintf("Ticket %s booked: session %s row %d seat %d order %s",
		ticket.ID, session.ID, rowNumber, seatNumber, orderNumber))
	s.publish(func() error { return s.Events.PublishTicketBooked(ticket) })
	return ticket, nil
}

// Pay moves a booked ticket to paid. Exactly-once: the second call always
// fails with ErrTicketAlreadyPaid, even under a concurrent race, because
// the conditional update only matches an unpaid row.
func (s *Service) Pay(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsPaid() {
		return nil, models.ErrTicketAlreadyPaid
	}

	now := s.Clock.Now()
	if ticket.MovieSession.IsBookingClosed(now, s.Config.ClosePeriod) {
		return nil, models.ErrNoBookingAvailable
	}

	ok, err := s.DB.MarkPaid(ctx, ticketID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrTicketAlreadyPaid
	}

	ticket.PaidAt = &now
	s.Logger.Info("BOOKING", fmt.Sprintf("Ticket %s paid (order %s)", ticket.ID, ticket.OrderNumber))
	s.publish(func() error { return s.Events.PublishTicketPaid(ticket) })
	return ticket, nil
}

// Cancel removes an unpaid ticket, freeing its seat slot. A paid ticket
// can never be canceled.
func (s *Service) Cancel(ctx context.Context, ticketID string) error {
	ticket, err := s.DB.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.IsPaid() {
		return models.ErrTicketAlreadyPaid
	}

	ok, err := s.DB.DeleteUnpaid(ctx, ticketID)
	if err != nil {
		return err
	}
	if !ok {
		// Lost a race since the read: either a concurrent cancel removed the
		// ticket or a concurrent payment protected it.
		current, err := s.DB.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if current.IsPaid() {
			return models.ErrTicketAlreadyPaid
		}
		return models.ErrTicketNotFound
	}

	s.Logger.Info("BOOKING", fmt.Sprintf("Ticket %s canceled (order %s)", ticket.ID, ticket.OrderNumber))
	s.publish(func() error { return s.Events.PublishTicketCanceled(ticket) })
	return nil
}

// CancelExpired is what the deferred job runner invokes at the close
// deadline. A missing ticket means the customer already canceled — a
// silent no-op by design. A paid ticket stays, also silently.
func (s *Service) CancelExpired(ctx context.Context, ticketID string) error {
	err := s.Cancel(ctx, ticketID)
	switch {
	case errors.Is(err, models.ErrTicketNotFound):
		s.Logger.Debug("SCHEDULER", fmt.Sprintf("Auto-cancel for ticket %s: already gone", ticketID))
		return nil
	case errors.Is(err, models.ErrTicketAlreadyPaid):
		s.Logger.Debug("SCHEDULER", fmt.Sprintf("Auto-cancel for ticket %s: already paid, keeping", ticketID))
		return nil
	default:
		return err
	}
}

func (s *Service) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.DB.GetTicket(ctx, ticketID)
}

func (s *Service) ListTicketsBySession(ctx context.Context, sessionID string) ([]models.Ticket, error) {
	return s.DB.ListTicketsBySession(ctx, sessionID)
}

func (s *Service) ListTicketsByCustomer(ctx context.Context, customerID string) ([]models.Ticket, error) {
	return s.DB.ListTicketsByCustomer(ctx, customerID)
}

// TicketQR renders the ticket's order number as a QR image.
func (s *Service) TicketQR(ctx context.Context, ticketID string) ([]byte, error) {
	ticket, err := s.DB.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return qr.TicketQR(ticket)
}

// RegisterCustomer records an identity from the identity provider.
func (s *Service) RegisterCustomer(ctx context.Context, email string) (*models.Customer, error) {
	customer := &models.Customer{
		ID:        uuid.New().String(),
		Email:     email,
		Active:    true,
		CreatedAt: s.Clock.Now(),
	}
	if !customer.Valid() {
		verr := models.NewValidationError()
		verr.Add("email", "must be a valid email address")
		return nil, verr
	}
	if err := s.DB.CreateCustomer(ctx, customer); err != nil {
		if database.IsUniqueViolation(err, "email") {
			verr := models.NewValidationError()
			verr.Add("email", "a customer with this email already exists")
			return nil, verr
		}
		return nil, err
	}
	return customer, nil
}

// GetCustomer resolves an identity; nil means unknown/unauthenticated.
func (s *Service) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	return s.DB.GetCustomer(ctx, id)
}

func (s *Service) publish(fn func() error) {
	if s.Events == nil {
		return
	}
	if err := fn(); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish ticket event: %v", err))
	}
}
