package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"cinema-ticketing/internal/api"
	"cinema-ticketing/internal/booking"
	booking_db "cinema-ticketing/internal/booking/db"
	"cinema-ticketing/internal/cinema"
	cinema_db "cinema-ticketing/internal/cinema/db"
	"cinema-ticketing/internal/clock"
	"cinema-ticketing/internal/config"
	"cinema-ticketing/internal/database"
	"cinema-ticketing/internal/kafka"
	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/scheduler"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Cinema Ticketing Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	bunDB, err := database.Connect(cfg.Database.DSN, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))

		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.AllTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be streamed")
	}

	clk := clock.System{}

	cinemaService := cinema.NewService(
		&cinema_db.DB{Bun: bunDB},
		clk,
		cinema.Config{
			EarliestStart:            cfg.Booking.EarliestStart,
			LatestStart:              cfg.Booking.LatestStart,
			DefaultAdvertiseDuration: cfg.Booking.DefaultAdvertiseDuration,
		},
		log,
		cinemaEvents(producer),
	)

	bookingService := booking.NewService(
		&booking_db.DB{Bun: bunDB},
		clk,
		booking.Config{
			ClosePeriod: cfg.Booking.ClosePeriod,
			OrderNumber: booking.OrderNumberConfig{
				SerialLength: cfg.Booking.OrderNumberSerialLength,
				NumberLength: cfg.Booking.OrderNumberNumberLength,
				MaxRetries:   cfg.Booking.OrderNumberMaxRetries,
			},
		},
		log,
		nil, // scheduler is wired below, after it exists
		bookingEvents(producer),
	)

	cancelScheduler := scheduler.New(redisClient, bookingService, log, clk)
	bookingService.Scheduler = cancelScheduler
	cancelScheduler.Start(ctx)

	log.Info("HTTP", "Setting up router")
	r := chi.NewRouter()
	handler := api.NewHandler(cinemaService, bookingService, log)
	handler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Cinema Ticketing Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancelScheduler.Stop()

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Cinema Ticketing Service shutdown complete")
	}
}

// A nil *kafka.Producer stored straight into the publisher interfaces
// would not compare equal to nil anymore, dodging the services' checks.
// These helpers keep a disabled producer as a true interface nil.

func cinemaEvents(p *kafka.Producer) cinema.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

func bookingEvents(p *kafka.Producer) booking.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
