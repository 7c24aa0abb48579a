// Package qr renders the human-facing ticket code as a QR image for
// display at the hall entrance.
package qr

import (
	"github.com/skip2/go-qrcode"

	"cinema-ticketing/internal/models"
)

const imageSize = 256

// TicketQR encodes the ticket's order number. The order number is the
// public ticket code, so no extra payload or encryption is involved.
func TicketQR(ticket *models.Ticket) ([]byte, error) {
	return qrcode.Encode(ticket.OrderNumber, qrcode.Medium, imageSize)
}
