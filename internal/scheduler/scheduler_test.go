package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"cinema-ticketing/internal/clock"
	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/scheduler"
)

type mockCanceler struct {
	canceled []string
	err      error
}

func (m *mockCanceler) CancelExpired(_ context.Context, ticketID string) error {
	if m.err != nil {
		return m.err
	}
	m.canceled = append(m.canceled, ticketID)
	return nil
}

func setupScheduler(t *testing.T, now time.Time) (*scheduler.Scheduler, *mockCanceler, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	canceler := &mockCanceler{}
	s := scheduler.New(client, canceler, logger.NewLogger(), clock.Fixed{T: now})
	return s, canceler, mr
}

func TestProcessDueNothingDue(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s, canceler, _ := setupScheduler(t, now)
	ctx := context.Background()

	if err := s.Enqueue(ctx, "ticket1", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	fired, err := s.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue errored: %v", err)
	}
	assert.Equal(t, 0, fired)
	assert.Empty(t, canceler.canceled)

	// The job stays queued for its deadline.
	count, err := s.Client.ZCard(ctx, s.QueueKey).Result()
	if err != nil {
		t.Fatalf("Failed to inspect queue: %v", err)
	}
	assert.Equal(t, int64(1), count)
}

func TestProcessDueFiresPastDeadlines(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s, canceler, _ := setupScheduler(t, now)
	ctx := context.Background()

	if err := s.Enqueue(ctx, "overdue", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := s.Enqueue(ctx, "exactlyNow", now); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := s.Enqueue(ctx, "future", now.Add(time.Hour)); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	fired, err := s.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue errored: %v", err)
	}
	assert.Equal(t, 2, fired)
	assert.ElementsMatch(t, []string{"overdue", "exactlyNow"}, canceler.canceled)

	// Fired jobs are gone; the future one remains.
	members, err := s.Client.ZRange(ctx, s.QueueKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("Failed to inspect queue: %v", err)
	}
	assert.Equal(t, []string{"future"}, members)
}

func TestEnqueueSameTicketMovesDeadline(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s, _, _ := setupScheduler(t, now)
	ctx := context.Background()

	if err := s.Enqueue(ctx, "ticket1", now.Add(time.Hour)); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := s.Enqueue(ctx, "ticket1", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("Failed to re-enqueue: %v", err)
	}

	count, err := s.Client.ZCard(ctx, s.QueueKey).Result()
	if err != nil {
		t.Fatalf("Failed to inspect queue: %v", err)
	}
	assert.Equal(t, int64(1), count, "re-enqueue must move the deadline, not duplicate the job")

	score, err := s.Client.ZScore(ctx, s.QueueKey, "ticket1").Result()
	if err != nil {
		t.Fatalf("Failed to read score: %v", err)
	}
	assert.Equal(t, float64(now.Add(2*time.Hour).Unix()), score)
}

func TestProcessDueReenqueuesOnFailure(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s, canceler, _ := setupScheduler(t, now)
	ctx := context.Background()

	canceler.err = errors.New("database down")
	if err := s.Enqueue(ctx, "ticket1", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	fired, err := s.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue errored: %v", err)
	}
	assert.Equal(t, 0, fired)

	// The job is back in the queue with a deadline in the future.
	score, err := s.Client.ZScore(ctx, s.QueueKey, "ticket1").Result()
	if err != nil {
		t.Fatalf("Expected job re-enqueued: %v", err)
	}
	assert.Greater(t, score, float64(now.Unix()))

	// Once the canceler recovers the retry goes through.
	canceler.err = nil
	s.Clock = clock.Fixed{T: now.Add(5 * time.Minute)}
	fired, err = s.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue errored: %v", err)
	}
	assert.Equal(t, 1, fired)
	assert.Equal(t, []string{"ticket1"}, canceler.canceled)
}
