package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"cinema-ticketing/internal/api"
	"cinema-ticketing/internal/booking"
	bookingdb "cinema-ticketing/internal/booking/db"
	"cinema-ticketing/internal/cinema"
	cinemadb "cinema-ticketing/internal/cinema/db"
	"cinema-ticketing/internal/clock"
	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(context.Context, string, time.Time) error { return nil }

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	tables := []interface{}{
		(*models.Hall)(nil),
		(*models.Movie)(nil),
		(*models.Customer)(nil),
		(*models.MovieSession)(nil),
		(*models.Ticket)(nil),
	}
	for _, m := range tables {
		require.NoError(t, bunDB.ResetModel(context.Background(), m))
	}

	log := logger.NewLogger()
	clk := clock.Fixed{T: testNow}

	cinemaSvc := cinema.NewService(&cinemadb.DB{Bun: bunDB}, clk, cinema.Config{
		EarliestStart:            models.MustTimeOfDay("08:00"),
		LatestStart:              models.MustTimeOfDay("23:00"),
		DefaultAdvertiseDuration: 10,
	}, log, nil)

	bookingSvc := booking.NewService(&bookingdb.DB{Bun: bunDB}, clk, booking.Config{
		ClosePeriod: 2 * time.Hour,
		OrderNumber: booking.OrderNumberConfig{SerialLength: 4, NumberLength: 8, MaxRetries: 3},
	}, log, noopEnqueuer{}, nil)

	r := chi.NewRouter()
	api.NewHandler(cinemaSvc, bookingSvc, log).RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, server *httptest.Server, path string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

// seedSchedule creates a hall, a movie and a session via the API and
// returns their IDs.
func seedSchedule(t *testing.T, server *httptest.Server) (hallID, movieID, sessionID string) {
	t.Helper()

	resp, hall := postJSON(t, server, "/api/halls", map[string]interface{}{
		"name": "Red Hall", "rows_number": 10, "seats_per_row": 12,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, movie := postJSON(t, server, "/api/movies", map[string]interface{}{
		"name": "Back to the Future", "duration": 116,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, session := postJSON(t, server, "/api/sessions", map[string]interface{}{
		"hall_id": hall["id"], "movie_id": movie["id"],
		"date": "2026-03-15", "starts_at": "19:00", "ticket_cost": 100.00,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return hall["id"].(string), movie["id"].(string), session["id"].(string)
}

func registerCustomer(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, customer := postJSON(t, server, "/api/customers", map[string]interface{}{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return customer["id"].(string)
}

func TestCreateHallValidation(t *testing.T) {
	server := setupServer(t)

	resp, body := postJSON(t, server, "/api/halls", map[string]interface{}{
		"name": "", "rows_number": 0, "seats_per_row": 0,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])
}

func TestCreateHallBadJSON(t *testing.T) {
	server := setupServer(t)

	resp, err := http.Post(server.URL+"/api/halls", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScheduleSessionFlow(t *testing.T) {
	server := setupServer(t)
	hallID, movieID, _ := seedSchedule(t, server)

	// Overlapping slot in the same hall is rejected with a stable code.
	resp, body := postJSON(t, server, "/api/sessions", map[string]interface{}{
		"hall_id": hallID, "movie_id": movieID,
		"date": "2026-03-15", "starts_at": "20:00", "ticket_cost": 100.00,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "movie_session_overlaps", body["error"])

	// A start outside the daily window is a field problem, not a 422.
	resp, body = postJSON(t, server, "/api/sessions", map[string]interface{}{
		"hall_id": hallID, "movie_id": movieID,
		"date": "2026-03-16", "starts_at": "07:00", "ticket_cost": 100.00,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields := body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "starts_at")

	// A malformed date never reaches the scheduler.
	resp, body = postJSON(t, server, "/api/sessions", map[string]interface{}{
		"hall_id": hallID, "movie_id": movieID,
		"date": "15.03.2026", "starts_at": "12:00", "ticket_cost": 100.00,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields = body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "date")
}

func TestDeleteScheduledHall(t *testing.T) {
	server := setupServer(t)
	hallID, _, _ := seedSchedule(t, server)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/halls/"+hallID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "hall_is_scheduled", body["error"])
}

func TestBookingFlow(t *testing.T) {
	server := setupServer(t)
	_, _, sessionID := seedSchedule(t, server)
	customerID := registerCustomer(t, server)

	bookPath := fmt.Sprintf("/api/sessions/%s/tickets", sessionID)

	resp, ticket := postJSON(t, server, bookPath, map[string]interface{}{
		"customer_id": customerID, "row_number": 3, "seat_number": 7,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(100), ticket["cost"])
	assert.NotEmpty(t, ticket["order_number"])

	// The same seat cannot be booked twice.
	resp, body := postJSON(t, server, bookPath, map[string]interface{}{
		"customer_id": customerID, "row_number": 3, "seat_number": 7,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "seat_not_available", body["error"])

	// Out-of-hall coordinates report every bad field at once.
	resp, body = postJSON(t, server, bookPath, map[string]interface{}{
		"customer_id": customerID, "row_number": 0, "seat_number": 99,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields := body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "row_number")
	assert.Contains(t, fields, "seat_number")

	// No resolvable customer: rejected before touching any seat.
	resp, body = postJSON(t, server, bookPath, map[string]interface{}{
		"row_number": 5, "seat_number": 5,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields = body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "customer")

	// Pay, then pay again.
	ticketID := ticket["id"].(string)
	resp, paid := postJSON(t, server, "/api/tickets/"+ticketID+"/payment", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, paid["paid_at"])

	resp, body = postJSON(t, server, "/api/tickets/"+ticketID+"/payment", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "ticket_already_paid", body["error"])
}

func TestTicketQREndpoint(t *testing.T) {
	server := setupServer(t)
	_, _, sessionID := seedSchedule(t, server)
	customerID := registerCustomer(t, server)

	resp, ticket := postJSON(t, server, fmt.Sprintf("/api/sessions/%s/tickets", sessionID), map[string]interface{}{
		"customer_id": customerID, "row_number": 1, "seat_number": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	qrResp, err := http.Get(server.URL + "/api/tickets/" + ticket["id"].(string) + "/qr")
	require.NoError(t, err)
	defer qrResp.Body.Close()

	assert.Equal(t, http.StatusOK, qrResp.StatusCode)
	assert.Equal(t, "image/png", qrResp.Header.Get("Content-Type"))
	png, err := io.ReadAll(qrResp.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestUnknownTicketIs404(t *testing.T) {
	server := setupServer(t)

	resp, err := http.Get(server.URL + "/api/tickets/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionSeatsEndpoint(t *testing.T) {
	server := setupServer(t)
	_, _, sessionID := seedSchedule(t, server)
	customerID := registerCustomer(t, server)

	resp, ticket := postJSON(t, server, fmt.Sprintf("/api/sessions/%s/tickets", sessionID), map[string]interface{}{
		"customer_id": customerID, "row_number": 2, "seat_number": 2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = ticket

	seatsResp, err := http.Get(server.URL + fmt.Sprintf("/api/sessions/%s/seats", sessionID))
	require.NoError(t, err)
	defer seatsResp.Body.Close()
	require.Equal(t, http.StatusOK, seatsResp.StatusCode)

	var seats map[string]int
	require.NoError(t, json.NewDecoder(seatsResp.Body).Decode(&seats))
	assert.Equal(t, 1, seats["booked_seats"])
	assert.Equal(t, 119, seats["empty_seats"])
}
