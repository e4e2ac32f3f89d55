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
	"strings"
	"time"

	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/internal/apierror"
	redlock "github.com/registrly/registrly/internal/lock"
	"github.com/registrly/registrly/internal/notification"
	"github.com/registrly/registrly/internal/provider"
	"github.com/registrly/registrly/internal/search"
	"github.com/registrly/registrly/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Where a reconciliation was triggered from. Used in logs only.
const (
	SourceWebhook = "webhook"
	SourceVerify  = "verify"
	SourceSweeper = "sweeper"
	SourceExpiry  = "expiry"
)

const (
	paymentReceivedMessage = "Payment received"
	reconcileLockTTL       = 30 * time.Second
	reconcileLockWait      = 10 * time.Second
)

var paymentsActor = model.SystemActor("payments")

// VerifyResult reports a session's state after VerifySession has reconciled it.
// PaymentStatus is the submission's status, SessionStatus the provider's.
type VerifyResult struct {
	SessionID     string              `json:"session_id"`
	SubmissionID  string              `json:"submission_id"`
	TransactionID string              `json:"transaction_id"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	SessionStatus string              `json:"session_status"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
}

// VerifySession re-queries the provider for the session and, when it reports
// the payment as settled, applies the same reconciliation as the webhook path.
func (r *Registrly) VerifySession(ctx context.Context, actor model.Actor, sessionID string) (*VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "Verifying checkout session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if sessionID == "" {
		return nil, invalidInput("session_id is required")
	}
	txn, err := r.datasource.GetTransactionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sub, err := r.datasource.GetSubmission(ctx, txn.SubmissionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, sub); err != nil {
		return nil, err
	}

	session, err := r.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	status, err := r.ReconcileSession(ctx, session, SourceVerify)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		SessionID:     sessionID,
		SubmissionID:  txn.SubmissionID,
		TransactionID: txn.TransactionID,
		PaymentStatus: status,
		SessionStatus: session.Status,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
	}, nil
}

// HandleProviderEvent authenticates a webhook delivery and queues it for
// reconciliation. Unhandled event types are acknowledged and dropped.
func (r *Registrly) HandleProviderEvent(ctx context.Context, payload []byte, signatureHeader string) (*provider.Event, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	if cfg.Payments.WebhookSecret == "" {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "webhook secret is not configured", nil)
	}

	event, err := provider.ConstructEvent(payload, signatureHeader, cfg.Payments.WebhookSecret, cfg.Payments.SignatureMaxSkew)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "invalid webhook signature", err.Error())
	}

	logger := logrus.WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type, "session_id": event.Data.Object.ID})
	if !event.Handled() {
		logger.Debug("ignoring unhandled provider event")
		return event, nil
	}

	if r.queue == nil {
		return event, r.ReconcileEvent(ctx, event)
	}
	if err := r.queue.EnqueuePaymentEvent(ctx, event); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrUpstreamUnavailable, "failed to queue payment event", err)
	}
	logger.Info("payment event queued")
	return event, nil
}

// ReconcileEvent applies a verified provider event.
func (r *Registrly) ReconcileEvent(ctx context.Context, event *provider.Event) error {
	session := &event.Data.Object
	var err error
	switch event.Type {
	case provider.EventCheckoutCompleted, provider.EventCheckoutAsyncPaymentPassed:
		_, err = r.ReconcileSession(ctx, session, SourceWebhook)
	case provider.EventCheckoutAsyncPaymentFailed:
		_, err = r.closeSession(ctx, session, model.TransactionFailed)
	case provider.EventCheckoutExpired:
		_, err = r.closeSession(ctx, session, model.TransactionExpired)
	default:
		return nil
	}
	return err
}

// ReconcileSessionByID fetches the session from the provider and reconciles it.
func (r *Registrly) ReconcileSessionByID(ctx context.Context, sessionID, source string) (model.PaymentStatus, error) {
	session, err := r.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return r.ReconcileSession(ctx, session, source)
}

// ReconcileSession brings local state in line with a provider-verified
// session and returns the submission's resulting payment status. Applying the
// same session any number of times yields one completed transaction and one
// timeline entry.
func (r *Registrly) ReconcileSession(ctx context.Context, session *provider.Session, source string) (model.PaymentStatus, error) {
	ctx, span := tracer.Start(ctx, "Reconciling checkout session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", session.ID), attribute.String("reconcile.source", source))

	switch {
	case session.Status == provider.SessionComplete && session.IsPaid():
		return r.completePayment(ctx, session, source)
	case session.IsAwaitingAsyncPayment():
		return r.markAwaitingPayment(ctx, session)
	case session.IsExpired():
		return r.closeSession(ctx, session, model.TransactionExpired)
	}

	txn, err := r.datasource.GetTransactionBySessionID(ctx, session.ID)
	if err != nil {
		return "", err
	}
	return r.currentPaymentStatus(ctx, txn.SubmissionID)
}

func (r *Registrly) completePayment(ctx context.Context, session *provider.Session, source string) (model.PaymentStatus, error) {
	txn, err := r.datasource.GetTransactionBySessionID(ctx, session.ID)
	if err != nil {
		return "", err
	}
	if err := checkSessionAmount(ctx, txn, session); err != nil {
		return "", err
	}

	locker := redlock.NewReconcileLocker(r.redis, session.ID)
	if err := locker.WaitLock(ctx, reconcileLockTTL, reconcileLockWait); err != nil {
		return "", apierror.NewAPIError(apierror.ErrUpstreamUnavailable, "session is being reconciled", err)
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithError(err).WithField("key", locker.Key()).Warn("failed to release reconcile lock")
		}
	}()
	// a slow completion must not outlive the lock and let a second writer in
	stopKeepAlive := locker.KeepAlive(ctx, reconcileLockTTL, reconcileLockTTL/3)
	defer stopKeepAlive()

	paidAt := r.clock()
	entry := model.TimelineEntry{Message: paymentReceivedMessage, Timestamp: paidAt, UpdatedBy: paymentsActor.ID}
	submissionID, status, err := r.datasource.CompletePayment(ctx, session.ID, session.PaymentIntent, paidAt, entry)
	if apierror.HasCode(err, apierror.ErrConflict) {
		return r.resolveCompletionConflict(ctx, session, txn)
	}
	if err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"session_id":    session.ID,
		"submission_id": submissionID,
		"status":        status,
		"source":        source,
	}).Info("payment reconciled")

	txn.Status = model.TransactionCompleted
	txn.ProviderPaymentID = session.PaymentIntent
	txn.PaidAt = &paidAt
	r.indexDocument(ctx, search.CollectionTransactions, search.TransactionDocument(txn))

	if sub, err := r.loadSubmission(ctx, submissionID); err != nil {
		r.invalidateSubmission(ctx, submissionID)
	} else {
		r.submissionChanged(ctx, sub, EventPaymentCompleted)
		r.analytics.Capture(sub.UserID, "payment_completed", map[string]interface{}{
			"submission_id": submissionID,
			"amount":        txn.Amount.StringFixed(2),
			"source":        source,
		})
	}
	return model.PaymentPaid, nil
}

// resolveCompletionConflict separates a replay, which is success, from a
// second paid session for a submission that already has a completed payment.
func (r *Registrly) resolveCompletionConflict(ctx context.Context, session *provider.Session, txn *model.Transaction) (model.PaymentStatus, error) {
	current, err := r.datasource.GetTransactionBySessionID(ctx, session.ID)
	if err != nil {
		return "", err
	}
	if current.Status == model.TransactionCompleted {
		logrus.WithField("session_id", session.ID).Debug("payment already reconciled")
		return model.PaymentPaid, nil
	}

	notification.NotifyError(fmt.Errorf("session %s was paid but submission %s already has a completed payment; refund required", session.ID, txn.SubmissionID))
	if _, err := r.datasource.CloseTransaction(ctx, session.ID, model.TransactionFailed); err != nil {
		return "", err
	}
	return model.PaymentPaid, nil
}

func checkSessionAmount(ctx context.Context, txn *model.Transaction, session *provider.Session) error {
	expected := AuthoritativeAmount{amount: txn.Amount}
	currencyMatches := session.Currency == "" || strings.EqualFold(session.Currency, txn.Currency)
	if session.AmountTotal == expected.MinorUnits() && currencyMatches {
		return nil
	}

	received := fmt.Sprintf("%s %s", decimal.New(session.AmountTotal, -2).StringFixed(2), strings.ToLower(session.Currency))
	if err := notification.AlertPaymentMismatch(ctx, session.ID, txn.SubmissionID, fmt.Sprintf("%s %s", expected, txn.Currency), received); err != nil {
		logrus.WithError(err).Warn("failed to send payment mismatch alert")
	}
	return apierror.NewAPIError(apierror.ErrInvalidInput, "paid amount does not match the checkout amount", map[string]interface{}{
		"session_id": session.ID,
		"expected":   expected.MinorUnits(),
		"received":   session.AmountTotal,
	})
}

// markAwaitingPayment records a completed checkout whose funds have not settled.
func (r *Registrly) markAwaitingPayment(ctx context.Context, session *provider.Session) (model.PaymentStatus, error) {
	txn, err := r.datasource.GetTransactionBySessionID(ctx, session.ID)
	if err != nil {
		return "", err
	}
	changed, err := r.datasource.UpdatePaymentStatus(ctx, txn.SubmissionID, model.PaymentUnpaid, model.PaymentPending)
	if err != nil {
		return "", err
	}
	if changed {
		r.invalidateSubmission(ctx, txn.SubmissionID)
		r.SendWebhook(ctx, EventPaymentPending, txn)
	}
	return r.currentPaymentStatus(ctx, txn.SubmissionID)
}

// closeSession marks a pending transaction failed or expired. A failed async
// payment also returns the submission from pending to unpaid. The submission
// status never changes here.
func (r *Registrly) closeSession(ctx context.Context, session *provider.Session, status model.TransactionStatus) (model.PaymentStatus, error) {
	txn, err := r.datasource.GetTransactionBySessionID(ctx, session.ID)
	if err != nil {
		return "", err
	}
	changed, err := r.datasource.CloseTransaction(ctx, session.ID, status)
	if err != nil {
		return "", err
	}
	if changed {
		if status == model.TransactionFailed {
			if _, err := r.datasource.UpdatePaymentStatus(ctx, txn.SubmissionID, model.PaymentPending, model.PaymentUnpaid); err != nil {
				return "", err
			}
			r.invalidateSubmission(ctx, txn.SubmissionID)
		}

		txn.Status = status
		r.indexDocument(ctx, search.CollectionTransactions, search.TransactionDocument(txn))
		event := EventPaymentExpired
		if status == model.TransactionFailed {
			event = EventPaymentFailed
		}
		r.SendWebhook(ctx, event, txn)
		logrus.WithFields(logrus.Fields{"session_id": session.ID, "status": status}).Info("checkout session closed")
	}
	return r.currentPaymentStatus(ctx, txn.SubmissionID)
}

func (r *Registrly) currentPaymentStatus(ctx context.Context, submissionID string) (model.PaymentStatus, error) {
	sub, err := r.datasource.GetSubmission(ctx, submissionID)
	if err != nil {
		return "", err
	}
	return sub.PaymentStatus, nil
}
