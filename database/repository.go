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

package database

import (
	"context"
	"time"

	"github.com/registrly/registrly/model"
)

// IDataSource is everything the service layer needs from storage.
type IDataSource interface {
	submission
	transaction
	contact
	stats
}

type submission interface {
	// CreateSubmission stores the submission and its first timeline entry atomically.
	CreateSubmission(ctx context.Context, sub *model.Submission, entry model.TimelineEntry) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, filter model.SubmissionFilter) ([]model.Submission, error)
	// TransitionSubmission sets the status and appends entry (and note when non-nil) atomically.
	// A non-empty expected makes the update conditional on the current status.
	TransitionSubmission(ctx context.Context, id string, expected, to model.SubmissionStatus, entry model.TimelineEntry, note *model.AdminNote) error
	AddSubmissionNote(ctx context.Context, id string, note model.AdminNote) error
	GetSubmissionTimeline(ctx context.Context, id string) ([]model.TimelineEntry, error)
	GetSubmissionNotes(ctx context.Context, id string) ([]model.AdminNote, error)
	// UpdatePaymentStatus moves payment_status from one value to another and reports whether a row changed.
	UpdatePaymentStatus(ctx context.Context, id string, from, to model.PaymentStatus) (bool, error)
}

type transaction interface {
	RecordTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionBySessionID(ctx context.Context, sessionID string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error)
	ClaimStalePendingTransactions(ctx context.Context, createdBefore, checkedAt time.Time, limit int) ([]model.Transaction, error)
	// CompletePayment marks the session's transaction completed, marks the submission paid and
	// appends one timeline entry, all in one SQL transaction. It returns the submission id and its
	// resulting status. A replay returns a CONFLICT error.
	CompletePayment(ctx context.Context, sessionID, paymentID string, paidAt time.Time, entry model.TimelineEntry) (string, model.SubmissionStatus, error)
	// CloseTransaction moves a pending transaction to failed or expired and reports whether it changed.
	CloseTransaction(ctx context.Context, sessionID string, status model.TransactionStatus) (bool, error)
}

type contact interface {
	CreateContactQuery(ctx context.Context, q *model.ContactQuery, entry model.TimelineEntry) error
	GetContactQuery(ctx context.Context, id string) (*model.ContactQuery, error)
	ListContactQueries(ctx context.Context, filter model.ContactFilter) ([]model.ContactQuery, error)
	TransitionContactQuery(ctx context.Context, id string, to model.ContactStatus, entry model.TimelineEntry, note *model.AdminNote) error
	AddContactNote(ctx context.Context, id string, note model.AdminNote) error
	GetContactTimeline(ctx context.Context, id string) ([]model.TimelineEntry, error)
	GetContactNotes(ctx context.Context, id string) ([]model.AdminNote, error)
}

type stats interface {
	GetStats(ctx context.Context) (*model.Stats, error)
}
