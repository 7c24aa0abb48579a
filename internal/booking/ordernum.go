package booking

import (
	"context"
	"math/rand"

	"cinema-ticketing/internal/models"
)

const orderNumberLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
const orderNumberDigits = "0123456789"

// OrderNumberConfig controls the human-facing ticket code: a serial of
// uppercase letters followed by a block of digits.
type OrderNumberConfig struct {
	SerialLength int
	NumberLength int
	MaxRetries   int
}

// OrderNumberGenerator produces order numbers and checks them for global
// uniqueness through the exists callback, retrying a bounded number of
// times on collision.
type OrderNumberGenerator struct {
	cfg OrderNumberConfig
}

func NewOrderNumberGenerator(cfg OrderNumberConfig) *OrderNumberGenerator {
	return &OrderNumberGenerator{cfg: cfg}
}

// generate is pure apart from randomness: serial letters then digits.
func (g *OrderNumberGenerator) generate() string {
	buf := make([]byte, 0, g.cfg.SerialLength+g.cfg.NumberLength)
	for i := 0; i < g.cfg.SerialLength; i++ {
		buf = append(buf, orderNumberLetters[rand.Intn(len(orderNumberLetters))])
	}
	for i := 0; i < g.cfg.NumberLength; i++ {
		buf = append(buf, orderNumberDigits[rand.Intn(len(orderNumberDigits))])
	}
	return string(buf)
}

// Next returns a code not yet present in storage. After MaxRetries
// colliding candidates it gives up with ErrAttemptsExhausted; under
// correct random generation that practically never happens, so it is an
// operator signal rather than something callers retry.
func (g *OrderNumberGenerator) Next(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	value := g.generate()
	for attempt := 1; ; attempt++ {
		taken, err := exists(ctx, value)
		if err != nil {
			return "", err
		}
		if !taken {
			return value, nil
		}
		if attempt >= g.cfg.MaxRetries {
			return "", models.ErrAttemptsExhausted
		}
		value = g.generate()
	}
}
