package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionExpired   TransactionStatus = "expired"
)

func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionPending, TransactionCompleted, TransactionFailed, TransactionExpired:
		return true
	}
	return false
}

func (s TransactionStatus) IsFinal() bool {
	return s != TransactionPending
}

// Transaction is one payment attempt for a submission. Retries create new rows.
type Transaction struct {
	ID                int64             `json:"-"`
	TransactionID     string            `json:"transaction_id"`
	SubmissionID      string            `json:"submission_id"`
	ProviderSessionID string            `json:"provider_session_id"`
	ProviderPaymentID string            `json:"provider_payment_id,omitempty"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Status            TransactionStatus `json:"status"`
	CheckoutURL       string            `json:"checkout_url,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
	ExpiresAt         time.Time         `json:"expires_at"`
}

type TransactionFilter struct {
	Status       TransactionStatus
	SubmissionID string
	Limit        int
	Offset       int
}
