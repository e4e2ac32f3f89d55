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
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/provider"
	"github.com/registrly/registrly/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var replayErr = apierror.NewAPIError(apierror.ErrConflict, "already reconciled", nil)

func paymentEntry() interface{} {
	return mock.MatchedBy(func(e model.TimelineEntry) bool {
		return e.Message == "Payment received" && e.UpdatedBy == "system:payments" && e.Timestamp.Equal(fixedNow)
	})
}

func TestReconcileSession_FirstDelivery(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_1")
	session := paidSession(txn)

	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(txn, nil)
	f.ds.On("CompletePayment", mock.Anything, "cs_1", "pi_123", fixedNow, paymentEntry()).
		Return(sub.SubmissionID, model.StatusProcessing, nil).Once()
	f.expectLoad(sub)

	status, err := f.r.ReconcileSession(context.Background(), session, SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, status)
	assert.False(t, f.redis.Exists("reconcile:cs_1"), "lock must be released")
}

func TestReconcileSession_HoldsLockWhileCompleting(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_1")

	var held bool
	var ttl time.Duration
	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(txn, nil)
	f.ds.On("CompletePayment", mock.Anything, "cs_1", "pi_123", fixedNow, paymentEntry()).
		Run(func(mock.Arguments) {
			held = f.redis.Exists("reconcile:cs_1")
			ttl = f.redis.TTL("reconcile:cs_1")
		}).
		Return(sub.SubmissionID, model.StatusProcessing, nil).Once()
	f.expectLoad(sub)

	_, err := f.r.ReconcileSession(context.Background(), paidSession(txn), SourceWebhook)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, reconcileLockTTL, ttl)
	assert.False(t, f.redis.Exists("reconcile:cs_1"))
}

func TestReconcileSession_ReplayIsSuccess(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_1")
	completed := *txn
	completed.Status = model.TransactionCompleted

	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(txn, nil).Once()
	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(&completed, nil)
	f.ds.On("CompletePayment", mock.Anything, "cs_1", "pi_123", fixedNow, mock.Anything).Return("", model.SubmissionStatus(""), replayErr)

	status, err := f.r.ReconcileSession(context.Background(), paidSession(txn), SourceVerify)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, status)
	f.ds.AssertNotCalled(t, "CloseTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileSession_ConcurrentDeliveriesCompleteOnce(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_1")
	completed := *txn
	completed.Status = model.TransactionCompleted

	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(txn, nil).Twice()
	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(&completed, nil)
	f.ds.On("CompletePayment", mock.Anything, "cs_1", "pi_123", fixedNow, mock.Anything).
		Return(sub.SubmissionID, model.StatusProcessing, nil).Once()
	f.ds.On("CompletePayment", mock.Anything, "cs_1", "pi_123", fixedNow, mock.Anything).
		Return("", model.SubmissionStatus(""), replayErr)
	f.expectLoad(sub)

	var wg sync.WaitGroup
	results := make([]model.PaymentStatus, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.r.ReconcileSession(context.Background(), paidSession(txn), SourceWebhook)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, model.PaymentPaid, results[i])
	}
	f.ds.AssertNumberOfCalls(t, "CompletePayment", 2)
	f.ds.AssertNumberOfCalls(t, "GetSubmissionTimeline", 1)
}

func TestReconcileSession_SecondPaidSessionIsFlagged(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_2")
	uniqueViolation := apierror.NewAPIError(apierror.ErrConflict, "duplicate", nil)

	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_2").Return(txn, nil)
	f.ds.On("CompletePayment", mock.Anything, "cs_2", "pi_123", fixedNow, mock.Anything).Return("", model.SubmissionStatus(""), uniqueViolation)
	f.ds.On("CloseTransaction", mock.Anything, "cs_2", model.TransactionFailed).Return(true, nil)

	status, err := f.r.ReconcileSession(context.Background(), paidSession(txn), SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, status)
	f.ds.AssertCalled(t, "CloseTransaction", mock.Anything, "cs_2", model.TransactionFailed)
}

func TestReconcileSession_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackAssisted)
	txn := pendingTransaction(sub, "cs_1")
	session := paidSession(txn)
	session.AmountTotal = 100

	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(txn, nil)

	_, err := f.r.ReconcileSession(context.Background(), session, SourceWebhook)
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
	f.ds.AssertNotCalled(t, "CompletePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileSession_AsyncPaymentPending(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_1")
	session := paidSession(txn)
	session.PaymentStatus = provider.PaymentUnpaid

	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(txn, nil)
	f.ds.On("UpdatePaymentStatus", mock.Anything, sub.SubmissionID, model.PaymentUnpaid, model.PaymentPending).
		Return(true, nil).Run(func(mock.Arguments) { sub.PaymentStatus = model.PaymentPending })
	f.ds.On("GetSubmission", mock.Anything, sub.SubmissionID).Return(sub, nil)

	status, err := f.r.ReconcileSession(context.Background(), session, SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, status)
	f.ds.AssertNotCalled(t, "CompletePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.ds.AssertNotCalled(t, "TransitionSubmission", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileEvent_AsyncFailureReturnsToUnpaid(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_1")
	event := &provider.Event{ID: "evt_1", Type: provider.EventCheckoutAsyncPaymentFailed}
	event.Data.Object = provider.Session{ID: "cs_1", Status: provider.SessionComplete, PaymentStatus: provider.PaymentUnpaid}

	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(txn, nil)
	f.ds.On("CloseTransaction", mock.Anything, "cs_1", model.TransactionFailed).Return(true, nil)
	f.ds.On("UpdatePaymentStatus", mock.Anything, sub.SubmissionID, model.PaymentPending, model.PaymentUnpaid).Return(true, nil)
	f.ds.On("GetSubmission", mock.Anything, sub.SubmissionID).Return(sub, nil)

	require.NoError(t, f.r.ReconcileEvent(context.Background(), event))
	f.ds.AssertExpectations(t)
}

func TestReconcileEvent_ExpiredLeavesSubmissionAlone(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_1")
	event := &provider.Event{ID: "evt_2", Type: provider.EventCheckoutExpired}
	event.Data.Object = provider.Session{ID: "cs_1", Status: provider.SessionExpired, PaymentStatus: provider.PaymentUnpaid}

	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(txn, nil)
	f.ds.On("CloseTransaction", mock.Anything, "cs_1", model.TransactionExpired).Return(true, nil)
	f.ds.On("GetSubmission", mock.Anything, sub.SubmissionID).Return(sub, nil)

	require.NoError(t, f.r.ReconcileEvent(context.Background(), event))
	f.ds.AssertNotCalled(t, "UpdatePaymentStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.ds.AssertNotCalled(t, "TransitionSubmission", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func signedEvent(t *testing.T, event *provider.Event) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload, provider.SignatureHeader(time.Now(), payload, testConfig().Payments.WebhookSecret)
}

func TestHandleProviderEvent_QueuesByEventID(t *testing.T) {
	f := newFixture(t)
	event := &provider.Event{ID: "evt_42", Type: provider.EventCheckoutCompleted}
	event.Data.Object = provider.Session{ID: "cs_1", Status: provider.SessionComplete, PaymentStatus: provider.PaymentPaid}
	payload, header := signedEvent(t, event)

	got, err := f.r.HandleProviderEvent(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_42", got.ID)

	tasks := f.queue.ofType(TaskPaymentEvent)
	require.Len(t, tasks, 1)
	assert.Equal(t, "evt_42", optionValue(tasks[0].opts, asynq.TaskIDOpt))
	assert.Equal(t, "payment_events", optionValue(tasks[0].opts, asynq.QueueOpt))
}

func TestHandleProviderEvent_DuplicateDeliveryIsAccepted(t *testing.T) {
	f := newFixture(t)
	f.queue.err = asynq.ErrTaskIDConflict
	event := &provider.Event{ID: "evt_42", Type: provider.EventCheckoutCompleted}
	payload, header := signedEvent(t, event)

	_, err := f.r.HandleProviderEvent(context.Background(), payload, header)
	assert.NoError(t, err)
}

func TestHandleProviderEvent_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	event := &provider.Event{ID: "evt_1", Type: provider.EventCheckoutCompleted}
	payload, _ := signedEvent(t, event)
	header := provider.SignatureHeader(time.Now(), payload, "whsec_other")

	_, err := f.r.HandleProviderEvent(context.Background(), payload, header)
	assert.True(t, apierror.HasCode(err, apierror.ErrUnauthorized))
	assert.Empty(t, f.queue.ofType(TaskPaymentEvent))
}

func TestHandleProviderEvent_IgnoresUnhandledTypes(t *testing.T) {
	f := newFixture(t)
	payload, header := signedEvent(t, &provider.Event{ID: "evt_9", Type: "customer.created"})

	_, err := f.r.HandleProviderEvent(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.Empty(t, f.queue.ofType(TaskPaymentEvent))
}

func TestVerifySession_ReconcilesPaidSession(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_1")

	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(txn, nil)
	f.expectLoad(sub)
	f.provider.On("RetrieveSession", mock.Anything, "cs_1").Return(paidSession(txn), nil)
	f.ds.On("CompletePayment", mock.Anything, "cs_1", "pi_123", fixedNow, paymentEntry()).
		Return(sub.SubmissionID, model.StatusProcessing, nil)

	result, err := f.r.VerifySession(context.Background(), owner, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, result.PaymentStatus)
	assert.Equal(t, sub.SubmissionID, result.SubmissionID)
	assert.True(t, txn.Amount.Equal(result.Amount))
}

func TestVerifySession_OpenSessionChangesNothing(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_1")

	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_1").Return(txn, nil)
	f.ds.On("GetSubmission", mock.Anything, sub.SubmissionID).Return(sub, nil)
	f.provider.On("RetrieveSession", mock.Anything, "cs_1").
		Return(&provider.Session{ID: "cs_1", Status: provider.SessionOpen, PaymentStatus: provider.PaymentUnpaid}, nil)

	result, err := f.r.VerifySession(context.Background(), owner, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentUnpaid, result.PaymentStatus)
	f.ds.AssertNotCalled(t, "CompletePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
