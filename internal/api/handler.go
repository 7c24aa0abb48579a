// Package api is the HTTP adapter over the scheduling and booking cores.
// It only parses requests and maps domain errors to responses; every rule
// lives in the services.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"cinema-ticketing/internal/booking"
	"cinema-ticketing/internal/cinema"
	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/models"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

type Handler struct {
	Cinema  *cinema.Service
	Booking *booking.Service
	Logger  *logger.Logger
}

func NewHandler(cinemaService *cinema.Service, bookingService *booking.Service, log *logger.Logger) *Handler {
	return &Handler{Cinema: cinemaService, Booking: bookingService, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/halls", func(r chi.Router) {
			r.Post("/", h.CreateHall)
			r.Get("/", h.ListHalls)
			r.Put("/{hallID}", h.RenameHall)
			r.Delete("/{hallID}", h.DeleteHall)
		})
		r.Route("/movies", func(r chi.Router) {
			r.Post("/", h.CreateMovie)
			r.Get("/", h.ListMovies)
			r.Put("/{movieID}", h.UpdateMovie)
			r.Delete("/{movieID}", h.DeleteMovie)
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.ScheduleSession)
			r.Get("/", h.ListSessions)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Put("/", h.UpdateSession)
				r.Delete("/", h.DeleteSession)
				r.Get("/seats", h.SessionSeats)
				r.Get("/tickets", h.ListSessionTickets)
				r.Post("/tickets", h.BookTicket)
			})
		})
		r.Route("/tickets/{ticketID}", func(r chi.Router) {
			r.Get("/", h.GetTicket)
			r.Delete("/", h.CancelTicket)
			r.Post("/payment", h.PayTicket)
			r.Get("/qr", h.TicketQR)
		})
		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.RegisterCustomer)
			r.Get("/{customerID}/tickets", h.ListCustomerTickets)
		})
	})
}

// ---------------- HALLS ----------------

type createHallRequest struct {
	Name             string `json:"name" validate:"required"`
	RowsNumber       int    `json:"rows_number" validate:"required,min=1"`
	SeatsPerRow      int    `json:"seats_per_row" validate:"required,min=1"`
	CleaningDuration int    `json:"cleaning_duration" validate:"omitempty,min=1"`
}

func (h *Handler) CreateHall(w http.ResponseWriter, r *http.Request) {
	var req createHallRequest
	if !h.decode(w, r, &req) {
		return
	}
	hall, err := h.Cinema.CreateHall(r.Context(), req.Name, req.RowsNumber, req.SeatsPerRow, req.CleaningDuration)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, hall)
}

func (h *Handler) ListHalls(w http.ResponseWriter, r *http.Request) {
	halls, err := h.Cinema.ListHalls(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, halls)
}

type renameHallRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) RenameHall(w http.ResponseWriter, r *http.Request) {
	var req renameHallRequest
	if !h.decode(w, r, &req) {
		return
	}
	hall, err := h.Cinema.RenameHall(r.Context(), chi.URLParam(r, "hallID"), req.Name)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, hall)
}

func (h *Handler) DeleteHall(w http.ResponseWriter, r *http.Request) {
	if err := h.Cinema.DeleteHall(r.Context(), chi.URLParam(r, "hallID")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------- MOVIES ----------------

type movieRequest struct {
	Name     string `json:"name" validate:"required"`
	Duration int    `json:"duration" validate:"required,min=1"`
}

func (h *Handler) CreateMovie(w http.ResponseWriter, r *http.Request) {
	var req movieRequest
	if !h.decode(w, r, &req) {
		return
	}
	movie, err := h.Cinema.CreateMovie(r.Context(), req.Name, req.Duration)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, movie)
}

func (h *Handler) ListMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.Cinema.ListMovies(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, movies)
}

func (h *Handler) UpdateMovie(w http.ResponseWriter, r *http.Request) {
	var req movieRequest
	if !h.decode(w, r, &req) {
		return
	}
	movie, err := h.Cinema.UpdateMovie(r.Context(), chi.URLParam(r, "movieID"), req.Name, req.Duration)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, movie)
}

func (h *Handler) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	if err := h.Cinema.DeleteMovie(r.Context(), chi.URLParam(r, "movieID")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------- SESSIONS ----------------

type sessionRequest struct {
	HallID            string  `json:"hall_id" validate:"required"`
	MovieID           string  `json:"movie_id" validate:"required"`
	Date              string  `json:"date" validate:"required"`
	StartsAt          string  `json:"starts_at" validate:"required"`
	TicketCost        float64 `json:"ticket_cost"`
	AdvertiseDuration *int    `json:"advertise_duration"`
}

func (h *Handler) sessionParams(w http.ResponseWriter, r *http.Request) (cinema.SessionParams, bool) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return cinema.SessionParams{}, false
	}

	verr := models.NewValidationError()
	date, err := time.ParseInLocation(dateLayout, req.Date, time.Local)
	if err != nil {
		verr.Add("date", "must be a date in YYYY-MM-DD format")
	}
	startsAt, err := models.ParseTimeOfDay(req.StartsAt)
	if err != nil {
		verr.Add("starts_at", "must be a time in HH:MM format")
	}
	if v := verr.OrNil(); v != nil {
		h.writeDomainError(w, v)
		return cinema.SessionParams{}, false
	}

	return cinema.SessionParams{
		HallID:            req.HallID,
		MovieID:           req.MovieID,
		Date:              date,
		StartsAt:          startsAt,
		TicketCost:        req.TicketCost,
		AdvertiseDuration: req.AdvertiseDuration,
	}, true
}

func (h *Handler) ScheduleSession(w http.ResponseWriter, r *http.Request) {
	params, ok := h.sessionParams(w, r)
	if !ok {
		return
	}
	session, err := h.Cinema.ScheduleSession(r.Context(), params)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	params, ok := h.sessionParams(w, r)
	if !ok {
		return
	}
	session, err := h.Cinema.UpdateSession(r.Context(), chi.URLParam(r, "sessionID"), params)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Cinema.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.Cinema.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Cinema.ListSessions(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) SessionSeats(w http.ResponseWriter, r *http.Request) {
	booked, empty, err := h.Cinema.SeatSummary(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{
		"booked_seats": booked,
		"empty_seats":  empty,
	})
}

func (h *Handler) ListSessionTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.Booking.ListTicketsBySession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tickets)
}

// ---------------- TICKETS ----------------

type bookTicketRequest struct {
	CustomerID string `json:"customer_id"`
	RowNumber  int    `json:"row_number"`
	SeatNumber int    `json:"seat_number"`
}

// BookTicket deliberately skips DTO-level row/seat validation: the
// booking engine aggregates those against the actual hall dimensions.
func (h *Handler) BookTicket(w http.ResponseWriter, r *http.Request) {
	var req bookTicketRequest
	if !h.decode(w, r, &req) {
		return
	}

	customer := &models.Customer{}
	if req.CustomerID != "" {
		resolved, err := h.Booking.GetCustomer(r.Context(), req.CustomerID)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		if resolved != nil {
			customer = resolved
		}
	}

	ticket, err := h.Booking.BookTicket(r.Context(), chi.URLParam(r, "sessionID"), customer, req.RowNumber, req.SeatNumber)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Booking.GetTicket(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) PayTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Booking.Pay(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	if err := h.Booking.Cancel(r.Context(), chi.URLParam(r, "ticketID")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Booking.TicketQR(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// ---------------- CUSTOMERS ----------------

type registerCustomerRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req registerCustomerRequest
	if !h.decode(w, r, &req) {
		return
	}
	customer, err := h.Booking.RegisterCustomer(r.Context(), req.Email)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, customer)
}

func (h *Handler) ListCustomerTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.Booking.ListTicketsByCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tickets)
}

// ---------------- HELPERS ----------------

// decode parses and DTO-validates the body; on failure it writes the
// response itself and reports false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "invalid_body",
			"detail": "request body must be valid JSON",
		})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
			}
		}
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "validation_error",
			"fields": fields,
		})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("HTTP", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

// writeDomainError maps core errors to responses: aggregated validation
// problems to 400, business-rule rejections to 422 with a stable code,
// unknown identities to 404, anything else to 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "validation_error",
			"fields": verr.Fields,
		})
		return
	}

	type rejection struct {
		code   string
		detail string
	}
	rejections := map[error]rejection{
		models.ErrSessionOverlaps:    {"movie_session_overlaps", "Movie session overlaps."},
		models.ErrSessionHasBookings: {"movie_session_has_bookings", "Movie session has bookings."},
		models.ErrMovieScheduled:     {"movie_is_scheduled", "Movie is scheduled."},
		models.ErrHallScheduled:      {"hall_is_scheduled", "Hall is scheduled."},
		models.ErrSeatNotAvailable:   {"seat_not_available", "Seat not available."},
		models.ErrNoBookingAvailable: {"no_booking_available", "No booking available."},
		models.ErrTicketAlreadyPaid:  {"ticket_already_paid", "Ticket already paid."},
	}
	for sentinel, rej := range rejections {
		if errors.Is(err, sentinel) {
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":  rej.code,
				"detail": rej.detail,
			})
			return
		}
	}

	switch {
	case errors.Is(err, models.ErrHallNotFound),
		errors.Is(err, models.ErrMovieNotFound),
		errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrTicketNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{
			"error":  "not_found",
			"detail": err.Error(),
		})
	default:
		h.Logger.Error("HTTP", fmt.Sprintf("Unhandled error: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "internal_error",
			"detail": "internal server error",
		})
	}
}
