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
	"sync"
	"time"

	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/provider"
	"github.com/registrly/registrly/model"
	"github.com/sirupsen/logrus"
)

const sweepBatchSize = 100

// Sweeper periodically re-queries the provider for transactions still pending
// after the webhook should have arrived, so a lost delivery still converges.
type Sweeper struct {
	registrly *Registrly
	interval  time.Duration
	after     time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewSweeper creates a sweeper that is idle until Start is called.
//
// Parameters:
// - r: The service whose pending transactions are swept.
// - interval: How often a batch is claimed.
// - after: How old a pending transaction must be before it is checked, so
//   the webhook has a chance to arrive first.
//
// Returns:
// - *Sweeper: The configured sweeper.
func NewSweeper(r *Registrly, interval, after time.Duration) *Sweeper {
	return &Sweeper{
		registrly: r,
		interval:  interval,
		after:     after,
		stopCh:    make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval in a background
// goroutine until Stop is called.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logrus.Infof("Payment sweeper started with interval: %v", s.interval)

		s.Sweep(context.Background())

		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stopCh:
				logrus.Info("Payment sweeper stopping...")
				return
			}
		}
	}()
}

// Stop signals the sweep loop to exit and waits for the current sweep to
// finish. It must be called at most once.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	logrus.Info("Payment sweeper stopped")
}

// Sweep reconciles one batch of stale pending transactions and reports how
// many reached a final state.
func (s *Sweeper) Sweep(ctx context.Context) int {
	r := s.registrly
	now := r.clock()
	txns, err := r.datasource.ClaimStalePendingTransactions(ctx, now.Add(-s.after), now, sweepBatchSize)
	if err != nil {
		logrus.Errorf("Sweeper: failed to fetch pending transactions: %v", err)
		return 0
	}
	if len(txns) == 0 {
		logrus.Debug("Sweeper: no stale pending transactions")
		return 0
	}

	logrus.Infof("Sweeper: checking %d pending transactions", len(txns))
	settled := 0
	for _, txn := range txns {
		if s.sweepOne(ctx, txn) {
			settled++
		}
	}
	return settled
}

func (s *Sweeper) sweepOne(ctx context.Context, txn model.Transaction) bool {
	r := s.registrly
	logger := logrus.WithFields(logrus.Fields{"transaction_id": txn.TransactionID, "session_id": txn.ProviderSessionID})

	var status model.PaymentStatus
	session, err := r.provider.RetrieveSession(ctx, txn.ProviderSessionID)
	switch {
	case apierror.HasCode(err, apierror.ErrNotFound):
		// the provider no longer knows the session, so it can never be paid
		logger.Warn("Sweeper: session unknown to provider, closing as expired")
		status, err = r.closeSession(ctx, &provider.Session{ID: txn.ProviderSessionID, Status: provider.SessionExpired}, model.TransactionExpired)
	case err != nil:
		logger.WithError(err).Error("Sweeper: failed to retrieve session")
		return false
	default:
		status, err = r.ReconcileSession(ctx, session, SourceSweeper)
	}
	if err != nil {
		logger.WithError(err).Error("Sweeper: reconcile failed")
		return false
	}

	current, err := r.datasource.GetTransaction(ctx, txn.TransactionID)
	if err != nil {
		logger.WithError(err).Warn("Sweeper: failed to reload transaction")
		return false
	}
	logger.WithField("payment_status", status).Debugf("Sweeper: transaction is %s", current.Status)
	return current.Status.IsFinal()
}
