package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"cinema-ticketing/internal/models"
)

// Topics for the cinema event stream.
const (
	TopicSessionScheduled = "cinema.session.scheduled"
	TopicTicketBooked     = "cinema.ticket.booked"
	TopicTicketPaid       = "cinema.ticket.paid"
	TopicTicketCanceled   = "cinema.ticket.canceled"
)

// AllTopics is what main ensures exist on startup.
var AllTopics = []string{
	TopicSessionScheduled,
	TopicTicketBooked,
	TopicTicketPaid,
	TopicTicketCanceled,
}

type Producer struct {
	Writer *kafka.Writer
}

// NewProducer builds a producer that routes per-message topics through a
// single writer.
func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer}
}

func (p *Producer) publish(topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// PublishSessionScheduled streams a newly placed session.
func (p *Producer) PublishSessionScheduled(session *models.MovieSession) error {
	return p.publish(TopicSessionScheduled, session.ID, session)
}

// PublishTicketBooked streams a successful seat allocation.
func (p *Producer) PublishTicketBooked(ticket *models.Ticket) error {
	return p.publish(TopicTicketBooked, ticket.ID, ticket)
}

// PublishTicketPaid streams a completed payment.
func (p *Producer) PublishTicketPaid(ticket *models.Ticket) error {
	return p.publish(TopicTicketPaid, ticket.ID, ticket)
}

// PublishTicketCanceled streams a cancellation, manual or automatic.
func (p *Producer) PublishTicketCanceled(ticket *models.Ticket) error {
	return p.publish(TopicTicketCanceled, ticket.ID, ticket)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
