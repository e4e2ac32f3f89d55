package model

import "github.com/shopspring/decimal"

// Stats is the operator dashboard summary.
type Stats struct {
	SubmissionsByStatus  map[SubmissionStatus]int64 `json:"submissions_by_status"`
	SubmissionsByPayment map[PaymentStatus]int64    `json:"submissions_by_payment_status"`
	ContactsByStatus     map[ContactStatus]int64    `json:"contact_queries_by_status"`
	TotalSubmissions     int64                      `json:"total_submissions"`
	Revenue              decimal.Decimal            `json:"revenue"`
	Currency             string                     `json:"currency"`
}
