package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Settlement is a verified gateway verdict for one reference. Channel is
// whatever the gateway reported and is not checked against a fixed set.
type Settlement struct {
	Reference        string
	Status           string
	Channel          string
	GatewayReference string
	RawPayload       string
	At               time.Time
}

// Apply returns the transaction after the settlement and whether a
// transition happened. Terminal transactions are returned unchanged.
func (t Transaction) Apply(s Settlement) (Transaction, bool) {
	if t.IsTerminal() {
		return t, false
	}

	next := t
	next.GatewayResponse = s.RawPayload
	next.UpdatedAt = s.At
	if next.GatewayReference == "" {
		next.GatewayReference = s.GatewayReference
	}

	switch s.Status {
	case TransactionStatusSuccess:
		paidAt := s.At
		next.Status = TransactionStatusSuccess
		next.PaymentMethod = strings.ToLower(s.Channel)
		next.PaidAt = &paidAt
	case TransactionStatusAbandoned:
		next.Status = TransactionStatusAbandoned
	default:
		next.Status = TransactionStatusFailed
	}

	return next, true
}

// NewTransactionReference builds SG_<unix>_<8 hex>, upper-cased.
func NewTransactionReference(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return strings.ToUpper(fmt.Sprintf("SG_%d_%s", now.Unix(), suffix))
}

// OrderNumberFor derives the human readable order number from the id.
func OrderNumberFor(id uuid.UUID) string {
	return "SG" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}
