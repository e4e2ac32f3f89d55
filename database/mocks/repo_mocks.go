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

package mocks

import (
	"context"
	"time"

	"github.com/registrly/registrly/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a testify mock of database.IDataSource.
type MockDataSource struct {
	mock.Mock
}

// Submission methods

func (m *MockDataSource) CreateSubmission(ctx context.Context, sub *model.Submission, entry model.TimelineEntry) error {
	args := m.Called(ctx, sub, entry)
	return args.Error(0)
}

func (m *MockDataSource) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	args := m.Called(ctx, id)
	sub, _ := args.Get(0).(*model.Submission)
	return sub, args.Error(1)
}

func (m *MockDataSource) ListSubmissions(ctx context.Context, filter model.SubmissionFilter) ([]model.Submission, error) {
	args := m.Called(ctx, filter)
	subs, _ := args.Get(0).([]model.Submission)
	return subs, args.Error(1)
}

func (m *MockDataSource) TransitionSubmission(ctx context.Context, id string, expected, to model.SubmissionStatus, entry model.TimelineEntry, note *model.AdminNote) error {
	args := m.Called(ctx, id, expected, to, entry, note)
	return args.Error(0)
}

func (m *MockDataSource) AddSubmissionNote(ctx context.Context, id string, note model.AdminNote) error {
	args := m.Called(ctx, id, note)
	return args.Error(0)
}

func (m *MockDataSource) GetSubmissionTimeline(ctx context.Context, id string) ([]model.TimelineEntry, error) {
	args := m.Called(ctx, id)
	entries, _ := args.Get(0).([]model.TimelineEntry)
	return entries, args.Error(1)
}

func (m *MockDataSource) GetSubmissionNotes(ctx context.Context, id string) ([]model.AdminNote, error) {
	args := m.Called(ctx, id)
	notes, _ := args.Get(0).([]model.AdminNote)
	return notes, args.Error(1)
}

func (m *MockDataSource) UpdatePaymentStatus(ctx context.Context, id string, from, to model.PaymentStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

// Transaction methods

func (m *MockDataSource) RecordTransaction(ctx context.Context, txn *model.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockDataSource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	args := m.Called(ctx, id)
	txn, _ := args.Get(0).(*model.Transaction)
	return txn, args.Error(1)
}

func (m *MockDataSource) GetTransactionBySessionID(ctx context.Context, sessionID string) (*model.Transaction, error) {
	args := m.Called(ctx, sessionID)
	txn, _ := args.Get(0).(*model.Transaction)
	return txn, args.Error(1)
}

func (m *MockDataSource) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	args := m.Called(ctx, filter)
	txns, _ := args.Get(0).([]model.Transaction)
	return txns, args.Error(1)
}

func (m *MockDataSource) ClaimStalePendingTransactions(ctx context.Context, createdBefore, checkedAt time.Time, limit int) ([]model.Transaction, error) {
	args := m.Called(ctx, createdBefore, checkedAt, limit)
	txns, _ := args.Get(0).([]model.Transaction)
	return txns, args.Error(1)
}

func (m *MockDataSource) CompletePayment(ctx context.Context, sessionID, paymentID string, paidAt time.Time, entry model.TimelineEntry) (string, model.SubmissionStatus, error) {
	args := m.Called(ctx, sessionID, paymentID, paidAt, entry)
	status, _ := args.Get(1).(model.SubmissionStatus)
	return args.String(0), status, args.Error(2)
}

func (m *MockDataSource) CloseTransaction(ctx context.Context, sessionID string, status model.TransactionStatus) (bool, error) {
	args := m.Called(ctx, sessionID, status)
	return args.Bool(0), args.Error(1)
}

// Contact methods

func (m *MockDataSource) CreateContactQuery(ctx context.Context, q *model.ContactQuery, entry model.TimelineEntry) error {
	args := m.Called(ctx, q, entry)
	return args.Error(0)
}

func (m *MockDataSource) GetContactQuery(ctx context.Context, id string) (*model.ContactQuery, error) {
	args := m.Called(ctx, id)
	q, _ := args.Get(0).(*model.ContactQuery)
	return q, args.Error(1)
}

func (m *MockDataSource) ListContactQueries(ctx context.Context, filter model.ContactFilter) ([]model.ContactQuery, error) {
	args := m.Called(ctx, filter)
	qs, _ := args.Get(0).([]model.ContactQuery)
	return qs, args.Error(1)
}

func (m *MockDataSource) TransitionContactQuery(ctx context.Context, id string, to model.ContactStatus, entry model.TimelineEntry, note *model.AdminNote) error {
	args := m.Called(ctx, id, to, entry, note)
	return args.Error(0)
}

func (m *MockDataSource) AddContactNote(ctx context.Context, id string, note model.AdminNote) error {
	args := m.Called(ctx, id, note)
	return args.Error(0)
}

func (m *MockDataSource) GetContactTimeline(ctx context.Context, id string) ([]model.TimelineEntry, error) {
	args := m.Called(ctx, id)
	entries, _ := args.Get(0).([]model.TimelineEntry)
	return entries, args.Error(1)
}

func (m *MockDataSource) GetContactNotes(ctx context.Context, id string) ([]model.AdminNote, error) {
	args := m.Called(ctx, id)
	notes, _ := args.Get(0).([]model.AdminNote)
	return notes, args.Error(1)
}

// Stats

func (m *MockDataSource) GetStats(ctx context.Context) (*model.Stats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*model.Stats)
	return stats, args.Error(1)
}
