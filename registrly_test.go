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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/database/mocks"
	"github.com/registrly/registrly/internal/cache"
	"github.com/registrly/registrly/internal/provider"
	"github.com/registrly/registrly/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	owner = model.Actor{ID: "user_1", Role: model.RoleUser}
	admin = model.Actor{ID: "admin-1", Role: model.RoleAdmin}
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, params provider.SessionParams) (*provider.Session, error) {
	args := m.Called(ctx, params)
	session, _ := args.Get(0).(*provider.Session)
	return session, args.Error(1)
}

func (m *mockProvider) RetrieveSession(ctx context.Context, sessionID string) (*provider.Session, error) {
	args := m.Called(ctx, sessionID)
	session, _ := args.Get(0).(*provider.Session)
	return session, args.Error(1)
}

type enqueued struct {
	task *asynq.Task
	opts []asynq.Option
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []enqueued
	err   error
}

func (e *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, enqueued{task: task, opts: opts})
	return &asynq.TaskInfo{ID: "task", Queue: "default"}, nil
}

func (e *recordingEnqueuer) ofType(taskType string) []enqueued {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []enqueued
	for _, t := range e.tasks {
		if t.task.Type() == taskType {
			out = append(out, t)
		}
	}
	return out
}

func optionValue(opts []asynq.Option, typ asynq.OptionType) interface{} {
	for _, o := range opts {
		if o.Type() == typ {
			return o.Value()
		}
	}
	return nil
}

func testConfig() *config.Configuration {
	return &config.Configuration{
		ProjectName: "registrly",
		Redis:       config.RedisConfig{Dns: "localhost:6379"},
		Payments: config.PaymentConfig{
			ProviderBaseURL:  "https://provider.test",
			SecretKey:        "sk_test",
			WebhookSecret:    "whsec_test",
			Currency:         "usd",
			SuccessURL:       "https://app.test/payment/success",
			CancelURL:        "https://app.test/payment/cancel",
			SessionTTL:       time.Hour,
			SweepInterval:    5 * time.Minute,
			SweepAfter:       10 * time.Minute,
			MaxRetries:       1,
			RequestTimeout:   time.Second,
			SignatureHeader:  "Stripe-Signature",
			SignatureMaxSkew: 5 * time.Minute,
		},
		Queue: config.QueueConfig{
			PaymentEventQueue: "payment_events",
			ExpiryQueue:       "session_expiry",
			WebhookQueue:      "webhook_notifications",
			IndexQueue:        "search_index",
			Concurrency:       2,
			MaxRetryAttempts:  5,
		},
	}
}

type fixture struct {
	r        *Registrly
	ds       *mocks.MockDataSource
	provider *mockProvider
	queue    *recordingEnqueuer
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	config.MockConfig(cfg)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ds := new(mocks.MockDataSource)
	p := new(mockProvider)
	q := &recordingEnqueuer{}
	r := &Registrly{
		datasource: ds,
		provider:   p,
		queue:      &Queue{client: q},
		redis:      client,
		cache:      cache.NewRedisCache(client),
		now:        func() time.Time { return fixedNow },
	}
	return &fixture{r: r, ds: ds, provider: p, queue: q, redis: mr}
}

func sampleSubmission(track model.Track, services ...string) *model.Submission {
	total, normalized, unrecognized := model.PriceBreakdown(track, services)
	return &model.Submission{
		SubmissionID:  model.GenerateUUIDWithSuffix(model.SubmissionPrefix),
		UserID:        owner.ID,
		Track:         track,
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentUnpaid,
		BusinessProfile: model.BusinessProfile{
			Name:         gofakeit.Company(),
			EntityType:   "LLC",
			ContactEmail: gofakeit.Email(),
		},
		AdditionalServices:   normalized,
		UnrecognizedServices: unrecognized,
		TotalAmount:          total,
		Currency:             "usd",
		CreatedAt:            fixedNow.Add(-time.Hour),
		LastUpdated:          fixedNow.Add(-time.Hour),
	}
}

func pendingTransaction(sub *model.Submission, sessionID string) *model.Transaction {
	return &model.Transaction{
		TransactionID:     model.GenerateUUIDWithSuffix(model.TransactionPrefix),
		SubmissionID:      sub.SubmissionID,
		ProviderSessionID: sessionID,
		Amount:            sub.TotalAmount,
		Currency:          "usd",
		Status:            model.TransactionPending,
		CreatedAt:         fixedNow.Add(-30 * time.Minute),
		ExpiresAt:         fixedNow.Add(30 * time.Minute),
	}
}

func paidSession(txn *model.Transaction) *provider.Session {
	return &provider.Session{
		ID:                txn.ProviderSessionID,
		Status:            provider.SessionComplete,
		PaymentStatus:     provider.PaymentPaid,
		AmountTotal:       txn.Amount.Shift(2).IntPart(),
		Currency:          "usd",
		PaymentIntent:     "pi_123",
		ClientReferenceID: txn.SubmissionID,
	}
}

// expectLoad sets up the reads loadSubmission performs.
func (f *fixture) expectLoad(sub *model.Submission) {
	f.ds.On("GetSubmission", mock.Anything, sub.SubmissionID).Return(sub, nil)
	f.ds.On("GetSubmissionTimeline", mock.Anything, sub.SubmissionID).Return([]model.TimelineEntry{}, nil)
	f.ds.On("GetSubmissionNotes", mock.Anything, sub.SubmissionID).Return([]model.AdminNote{}, nil)
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
