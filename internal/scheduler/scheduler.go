// Package scheduler is the deferred job runner behind automatic
// cancellation of unpaid tickets. Deadlines live in a Redis sorted set
// keyed by wall-clock time, so pending jobs survive process restarts and
// any worker replica can fire them.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"cinema-ticketing/internal/clock"
	"cinema-ticketing/internal/logger"
)

const (
	defaultQueueKey     = "cinema:cancel_schedule"
	defaultPollInterval = 15 * time.Second
	retryDelay          = 1 * time.Minute
)

// TicketCanceler is the lifecycle operation a due job invokes. It must
// treat a missing or paid ticket as a no-op.
type TicketCanceler interface {
	CancelExpired(ctx context.Context, ticketID string) error
}

type Scheduler struct {
	Client       *redis.Client
	Tickets      TicketCanceler
	Logger       *logger.Logger
	Clock        clock.Clock
	QueueKey     string
	PollInterval time.Duration

	done chan struct{}
}

func New(client *redis.Client, tickets TicketCanceler, log *logger.Logger, clk clock.Clock) *Scheduler {
	return &Scheduler{
		Client:       client,
		Tickets:      tickets,
		Logger:       log,
		Clock:        clk,
		QueueKey:     defaultQueueKey,
		PollInterval: defaultPollInterval,
		done:         make(chan struct{}),
	}
}

// Enqueue schedules a cancel for the ticket at runAt. ZADD overwrites the
// score for an existing member, so re-enqueueing the same ticket moves
// its deadline instead of duplicating the job.
func (s *Scheduler) Enqueue(ctx context.Context, ticketID string, runAt time.Time) error {
	return s.Client.ZAdd(ctx, s.QueueKey, &redis.Z{
		Score:  float64(runAt.Unix()),
		Member: ticketID,
	}).Err()
}

// Start runs the polling loop until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.PollInterval)
		defer ticker.Stop()

		s.Logger.Info("SCHEDULER", fmt.Sprintf("Auto-cancel scheduler started (poll every %v)", s.PollInterval))
		for {
			select {
			case <-ticker.C:
				fired, err := s.ProcessDue(ctx)
				if err != nil {
					s.Logger.Error("SCHEDULER", fmt.Sprintf("Processing due cancellations failed: %v", err))
				} else if fired > 0 {
					s.Logger.Info("SCHEDULER", fmt.Sprintf("Fired %d due auto-cancellations", fired))
				}
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.done)
	s.Logger.Info("SCHEDULER", "Auto-cancel scheduler stopped")
}

// ProcessDue fires every job whose deadline has passed. A job is claimed
// by removing it from the set first; a removal that matches nothing means
// another worker won it. A cancel that fails for infrastructure reasons
// is re-enqueued a minute out rather than dropped.
func (s *Scheduler) ProcessDue(ctx context.Context) (int, error) {
	now := s.Clock.Now()
	due, err := s.Client.ZRangeByScore(ctx, s.QueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read due jobs: %w", err)
	}

	fired := 0
	for _, ticketID := range due {
		removed, err := s.Client.ZRem(ctx, s.QueueKey, ticketID).Result()
		if err != nil {
			return fired, fmt.Errorf("claim job for ticket %s: %w", ticketID, err)
		}
		if removed == 0 {
			continue
		}

		if err := s.Tickets.CancelExpired(ctx, ticketID); err != nil {
			s.Logger.Error("SCHEDULER", fmt.Sprintf("Auto-cancel of ticket %s failed, retrying later: %v", ticketID, err))
			if reErr := s.Enqueue(ctx, ticketID, now.Add(retryDelay)); reErr != nil {
				s.Logger.Error("SCHEDULER", fmt.Sprintf("Re-enqueue of ticket %s failed: %v", ticketID, reErr))
			}
			continue
		}
		fired++
	}
	return fired, nil
}
