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

package registrly

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/provider"
	"github.com/registrly/registrly/internal/search"
	"github.com/registrly/registrly/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// CheckoutRequest identifies the submission to pay for. Track and services
// are optional and, when present, must match what was recorded.
type CheckoutRequest struct {
	SubmissionID       string
	Track              model.Track
	AdditionalServices []string
}

// CheckoutSession is returned to the client after a hosted checkout is opened.
// The client redirects to URL; payment state arrives later through the
// webhook, VerifySession or the sweeper.
type CheckoutSession struct {
	SessionID     string          `json:"session_id"`
	URL           string          `json:"url"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// CreateCheckoutSession opens a hosted checkout for the submission's recorded
// total and stores a pending transaction for it. No client amount is accepted.
//
// Parameters:
// - ctx: The context for the operation.
// - actor: The caller; the submission owner or an admin.
// - req: The submission to pay for. Track and services, when sent, must
//   match what the submission recorded.
//
// Returns:
// - *CheckoutSession: The session ID and URL to redirect to.
// - error: CONFLICT if the submission is already paid, UPSTREAM_UNAVAILABLE
//   if the provider cannot be reached.
func (r *Registrly) CreateCheckoutSession(ctx context.Context, actor model.Actor, req CheckoutRequest) (*CheckoutSession, error) {
	ctx, span := tracer.Start(ctx, "Creating checkout session")
	defer span.End()

	if req.SubmissionID == "" {
		return nil, invalidInput("submission_id is required")
	}
	span.SetAttributes(attribute.String("submission.id", req.SubmissionID))

	sub, err := r.datasource.GetSubmission(ctx, req.SubmissionID)
	if apierror.HasCode(err, apierror.ErrNotFound) {
		return nil, invalidInput("submission not found")
	}
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, sub); err != nil {
		return nil, err
	}
	if err := checkPayable(sub, req); err != nil {
		return nil, err
	}

	amount := recordedAmount(sub)
	if computed := ComputeTotal(sub.Track, sub.AdditionalServices); !computed.Decimal().Equal(amount.Decimal()) {
		logrus.WithFields(logrus.Fields{
			"submission_id": sub.SubmissionID,
			"recorded":      amount.String(),
			"current":       computed.String(),
		}).Warn("fee table changed since submission; charging recorded total")
	}

	return r.startCheckout(ctx, sub, amount)
}

func checkPayable(sub *model.Submission, req CheckoutRequest) error {
	switch sub.PaymentStatus {
	case model.PaymentPaid:
		return apierror.NewAPIError(apierror.ErrConflict, "submission is already paid", nil)
	case model.PaymentPending:
		return apierror.NewAPIError(apierror.ErrConflict, "a payment for this submission is still settling", nil)
	}
	if sub.Status == model.StatusCancelled || sub.Status == model.StatusRejected {
		return invalidInput("submission is %s and cannot be paid", sub.Status)
	}
	if req.Track != "" && req.Track != sub.Track {
		return invalidInput("track %s does not match the submission", req.Track)
	}
	if req.AdditionalServices != nil {
		requested := model.NormalizeServices(req.AdditionalServices)
		recorded := model.NormalizeServices(sub.AdditionalServices)
		if !reflect.DeepEqual(requested, recorded) {
			return invalidInput("additional services do not match the submission")
		}
	}
	return nil
}

// startCheckout only accepts a server-computed amount.
func (r *Registrly) startCheckout(ctx context.Context, sub *model.Submission, amount AuthoritativeAmount) (*CheckoutSession, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	now := r.clock()
	expiresAt := now.Add(cfg.Payments.SessionTTL)
	transactionID := model.GenerateUUIDWithSuffix(model.TransactionPrefix)
	session, err := r.provider.CreateCheckoutSession(ctx, provider.SessionParams{
		SubmissionID:  sub.SubmissionID,
		TransactionID: transactionID,
		CustomerEmail: sub.BusinessProfile.ContactEmail,
		ProductName:   fmt.Sprintf("%s business registration: %s", sub.Track, sub.BusinessProfile.Name),
		AmountMinor:   amount.MinorUnits(),
		Currency:      sub.Currency,
		SuccessURL:    cfg.Payments.SuccessURL,
		CancelURL:     cfg.Payments.CancelURL,
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		return nil, err
	}

	if session.ExpiresAt > 0 {
		expiresAt = session.ExpiryTime()
	}
	txn := &model.Transaction{
		TransactionID:     transactionID,
		SubmissionID:      sub.SubmissionID,
		ProviderSessionID: session.ID,
		Amount:            amount.Decimal(),
		Currency:          sub.Currency,
		Status:            model.TransactionPending,
		CheckoutURL:       session.URL,
		CreatedAt:         now,
		ExpiresAt:         expiresAt,
	}
	if err := r.datasource.RecordTransaction(ctx, txn); err != nil {
		return nil, err
	}

	if r.queue != nil {
		if err := r.queue.EnqueueSessionExpiry(ctx, session.ID, expiresAt); err != nil {
			logrus.WithError(err).WithField("session_id", session.ID).Warn("failed to schedule session expiry check")
		}
	}
	r.indexDocument(ctx, search.CollectionTransactions, search.TransactionDocument(txn))
	r.analytics.Capture(sub.UserID, "checkout_session_created", map[string]interface{}{
		"submission_id": sub.SubmissionID,
		"amount":        amount.String(),
	})

	logrus.WithFields(logrus.Fields{
		"submission_id":  sub.SubmissionID,
		"transaction_id": transactionID,
		"session_id":     session.ID,
		"amount":         amount.String(),
	}).Info("checkout session created")

	return &CheckoutSession{
		SessionID:     session.ID,
		URL:           session.URL,
		TransactionID: transactionID,
		Amount:        amount.Decimal(),
		Currency:      sub.Currency,
		ExpiresAt:     expiresAt,
	}, nil
}
