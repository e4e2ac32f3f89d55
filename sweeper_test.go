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
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/registrly/registrly/database/mocks"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/provider"
	"github.com/registrly/registrly/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestSweep_ConvergesLostWebhooks(t *testing.T) {
	f := newFixture(t)
	paidSub := sampleSubmission(model.TrackDIY)
	paidTxn := pendingTransaction(paidSub, "cs_paid")
	expiredSub := sampleSubmission(model.TrackDIY)
	expiredTxn := pendingTransaction(expiredSub, "cs_expired")
	openSub := sampleSubmission(model.TrackDIY)
	openTxn := pendingTransaction(openSub, "cs_open")

	f.ds.On("ClaimStalePendingTransactions", mock.Anything, fixedNow.Add(-10*time.Minute), fixedNow, sweepBatchSize).
		Return([]model.Transaction{*paidTxn, *expiredTxn, *openTxn}, nil)

	f.provider.On("RetrieveSession", mock.Anything, "cs_paid").Return(paidSession(paidTxn), nil)
	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_paid").Return(paidTxn, nil)
	f.ds.On("CompletePayment", mock.Anything, "cs_paid", "pi_123", fixedNow, mock.Anything).Return(paidSub.SubmissionID, model.StatusProcessing, nil)
	f.expectLoad(paidSub)
	completed := *paidTxn
	completed.Status = model.TransactionCompleted
	f.ds.On("GetTransaction", mock.Anything, paidTxn.TransactionID).Return(&completed, nil)

	f.provider.On("RetrieveSession", mock.Anything, "cs_expired").
		Return(&provider.Session{ID: "cs_expired", Status: provider.SessionExpired, PaymentStatus: provider.PaymentUnpaid}, nil)
	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_expired").Return(expiredTxn, nil)
	f.ds.On("CloseTransaction", mock.Anything, "cs_expired", model.TransactionExpired).Return(true, nil)
	f.ds.On("GetSubmission", mock.Anything, expiredSub.SubmissionID).Return(expiredSub, nil)
	expired := *expiredTxn
	expired.Status = model.TransactionExpired
	f.ds.On("GetTransaction", mock.Anything, expiredTxn.TransactionID).Return(&expired, nil)

	f.provider.On("RetrieveSession", mock.Anything, "cs_open").
		Return(&provider.Session{ID: "cs_open", Status: provider.SessionOpen, PaymentStatus: provider.PaymentUnpaid}, nil)
	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_open").Return(openTxn, nil)
	f.ds.On("GetSubmission", mock.Anything, openSub.SubmissionID).Return(openSub, nil)
	f.ds.On("GetTransaction", mock.Anything, openTxn.TransactionID).Return(openTxn, nil)

	sweeper := NewSweeper(f.r, time.Minute, 10*time.Minute)
	assert.Equal(t, 2, sweeper.Sweep(context.Background()))
}

func TestSweep_ProviderOutageIsSkipped(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_1")

	f.ds.On("ClaimStalePendingTransactions", mock.Anything, mock.Anything, mock.Anything, sweepBatchSize).Return([]model.Transaction{*txn}, nil)
	f.provider.On("RetrieveSession", mock.Anything, "cs_1").
		Return(nil, apierror.NewAPIError(apierror.ErrUpstreamUnavailable, "down", nil))

	assert.Equal(t, 0, NewSweeper(f.r, time.Minute, time.Minute).Sweep(context.Background()))
	f.ds.AssertNotCalled(t, "GetTransaction", mock.Anything, mock.Anything)
}

func TestSweeper_StartStop(t *testing.T) {
	f := newFixture(t)
	f.ds.On("ClaimStalePendingTransactions", mock.Anything, mock.Anything, mock.Anything, sweepBatchSize).Return([]model.Transaction{}, nil)

	sweeper := NewSweeper(f.r, 10*time.Millisecond, time.Minute)
	sweeper.Start()
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()

	f.ds.AssertCalled(t, "ClaimStalePendingTransactions", mock.Anything, mock.Anything, mock.Anything, sweepBatchSize)
}

func TestSweep_ProviderNotFoundClosesAsExpired(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	txn := pendingTransaction(sub, "cs_gone")

	f.ds.On("ClaimStalePendingTransactions", mock.Anything, mock.Anything, fixedNow, sweepBatchSize).Return([]model.Transaction{*txn}, nil)
	f.provider.On("RetrieveSession", mock.Anything, "cs_gone").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "checkout session not found", nil))
	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_gone").Return(txn, nil)
	f.ds.On("CloseTransaction", mock.Anything, "cs_gone", model.TransactionExpired).Return(true, nil)
	f.ds.On("GetSubmission", mock.Anything, sub.SubmissionID).Return(sub, nil)
	expired := *txn
	expired.Status = model.TransactionExpired
	f.ds.On("GetTransaction", mock.Anything, txn.TransactionID).Return(&expired, nil)

	assert.Equal(t, 1, NewSweeper(f.r, time.Minute, time.Minute).Sweep(context.Background()))
	f.ds.AssertCalled(t, "CloseTransaction", mock.Anything, "cs_gone", model.TransactionExpired)
	f.ds.AssertNotCalled(t, "UpdatePaymentStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// rotatingDataSource claims pending rows least recently checked first, the
// way ClaimStalePendingTransactions orders them in Postgres.
type rotatingDataSource struct {
	*mocks.MockDataSource
	mu      sync.Mutex
	rows    []*model.Transaction
	checked map[string]time.Time
	closed  map[string]bool
}

func (d *rotatingDataSource) ClaimStalePendingTransactions(_ context.Context, createdBefore, checkedAt time.Time, limit int) ([]model.Transaction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var candidates []*model.Transaction
	for _, row := range d.rows {
		if !d.closed[row.TransactionID] && row.CreatedAt.Before(createdBefore) {
			candidates = append(candidates, row)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := d.checked[candidates[i].TransactionID], d.checked[candidates[j].TransactionID]
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	claimed := make([]model.Transaction, 0, len(candidates))
	for _, row := range candidates {
		d.checked[row.TransactionID] = checkedAt
		claimed = append(claimed, *row)
	}
	return claimed, nil
}

func TestSweep_RotatesPastFirstBatch(t *testing.T) {
	f := newFixture(t)
	ds := &rotatingDataSource{
		MockDataSource: f.ds,
		checked:        map[string]time.Time{},
		closed:         map[string]bool{},
	}
	f.r.datasource = ds

	// a full batch of sessions that stay open, all older than the last row
	for i := 0; i < sweepBatchSize; i++ {
		sub := sampleSubmission(model.TrackDIY)
		txn := pendingTransaction(sub, fmt.Sprintf("cs_open_%d", i))
		txn.CreatedAt = fixedNow.Add(-2*time.Hour + time.Duration(i)*time.Second)
		ds.rows = append(ds.rows, txn)

		f.provider.On("RetrieveSession", mock.Anything, txn.ProviderSessionID).
			Return(&provider.Session{ID: txn.ProviderSessionID, Status: provider.SessionOpen, PaymentStatus: provider.PaymentUnpaid}, nil)
		f.ds.On("GetTransactionBySessionID", mock.Anything, txn.ProviderSessionID).Return(txn, nil)
		f.ds.On("GetSubmission", mock.Anything, sub.SubmissionID).Return(sub, nil)
		f.ds.On("GetTransaction", mock.Anything, txn.TransactionID).Return(txn, nil)
	}

	lateSub := sampleSubmission(model.TrackDIY)
	lateTxn := pendingTransaction(lateSub, "cs_late")
	lateTxn.CreatedAt = fixedNow.Add(-time.Hour)
	ds.rows = append(ds.rows, lateTxn)

	f.provider.On("RetrieveSession", mock.Anything, "cs_late").
		Return(&provider.Session{ID: "cs_late", Status: provider.SessionExpired, PaymentStatus: provider.PaymentUnpaid}, nil)
	f.ds.On("GetTransactionBySessionID", mock.Anything, "cs_late").Return(lateTxn, nil)
	f.ds.On("CloseTransaction", mock.Anything, "cs_late", model.TransactionExpired).
		Run(func(mock.Arguments) {
			ds.mu.Lock()
			ds.closed[lateTxn.TransactionID] = true
			ds.mu.Unlock()
		}).
		Return(true, nil)
	f.ds.On("GetSubmission", mock.Anything, lateSub.SubmissionID).Return(lateSub, nil)
	expired := *lateTxn
	expired.Status = model.TransactionExpired
	f.ds.On("GetTransaction", mock.Anything, lateTxn.TransactionID).Return(&expired, nil)

	sweeper := NewSweeper(f.r, time.Minute, 10*time.Minute)

	assert.Equal(t, 0, sweeper.Sweep(context.Background()))
	f.provider.AssertNotCalled(t, "RetrieveSession", mock.Anything, "cs_late")

	f.r.now = func() time.Time { return fixedNow.Add(time.Minute) }
	assert.Equal(t, 1, sweeper.Sweep(context.Background()))
	f.provider.AssertCalled(t, "RetrieveSession", mock.Anything, "cs_late")
	f.ds.AssertCalled(t, "CloseTransaction", mock.Anything, "cs_late", model.TransactionExpired)
}
