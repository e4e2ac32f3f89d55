/*
Copyright 2024 Registrly Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package provider talks to the hosted checkout provider: it creates checkout
// sessions, re-queries them, and authenticates the provider's signed webhook
// deliveries. The wire format is the Stripe Checkout Sessions API.
package provider

import (
	"context"
	"time"
)

// Session status values reported by the provider.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"

	PaymentPaid              = "paid"
	PaymentUnpaid            = "unpaid"
	PaymentNoPaymentRequired = "no_payment_required"
)

type Provider interface {
	CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
}

type SessionParams struct {
	SubmissionID  string
	TransactionID string
	CustomerEmail string
	ProductName   string
	AmountMinor   int64
	Currency      string
	SuccessURL    string
	CancelURL     string
	ExpiresAt     time.Time
}

type Session struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	PaymentIntent     string            `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	ExpiresAt         int64             `json:"expires_at"`
}

func (s *Session) IsPaid() bool {
	return s.PaymentStatus == PaymentPaid || s.PaymentStatus == PaymentNoPaymentRequired
}

// IsAwaitingAsyncPayment reports a completed checkout whose funds have not settled yet.
func (s *Session) IsAwaitingAsyncPayment() bool {
	return s.Status == SessionComplete && s.PaymentStatus == PaymentUnpaid
}

func (s *Session) IsExpired() bool {
	return s.Status == SessionExpired
}

// SubmissionID returns the submission the session was opened for.
func (s *Session) SubmissionID() string {
	if id := s.Metadata["submission_id"]; id != "" {
		return id
	}
	return s.ClientReferenceID
}

func (s *Session) ExpiryTime() time.Time {
	return time.Unix(s.ExpiresAt, 0).UTC()
}
