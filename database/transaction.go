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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/model"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel"
)

const transactionColumns = `transaction_id, submission_id, provider_session_id, provider_payment_id, amount, currency,
	status, checkout_url, created_at, paid_at, expires_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	txn := &model.Transaction{}
	var paidAt sql.NullTime
	err := row.Scan(
		&txn.TransactionID, &txn.SubmissionID, &txn.ProviderSessionID, &txn.ProviderPaymentID,
		&txn.Amount, &txn.Currency, &txn.Status, &txn.CheckoutURL, &txn.CreatedAt, &paidAt, &txn.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		txn.PaidAt = ptr.Time(paidAt.Time)
	}
	return txn, nil
}

func (d Datasource) RecordTransaction(ctx context.Context, txn *model.Transaction) error {
	ctx, span := otel.Tracer("registrly.database").Start(ctx, "Saving transaction to db")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO registrly.transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txn.TransactionID, txn.SubmissionID, txn.ProviderSessionID, txn.ProviderPaymentID,
		txn.Amount, txn.Currency, txn.Status, txn.CheckoutURL, txn.CreatedAt, txn.PaidAt, txn.ExpiresAt,
	)
	if err != nil {
		return apierror.FromDBError(err, fmt.Sprintf("Submission with ID '%s' not found", txn.SubmissionID))
	}
	return nil
}

func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM registrly.transactions WHERE transaction_id = $1`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		return nil, apierror.FromDBError(err, fmt.Sprintf("Transaction with ID '%s' not found", id))
	}
	return txn, nil
}

func (d Datasource) GetTransactionBySessionID(ctx context.Context, sessionID string) (*model.Transaction, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM registrly.transactions WHERE provider_session_id = $1`, sessionID)
	txn, err := scanTransaction(row)
	if err != nil {
		return nil, apierror.FromDBError(err, fmt.Sprintf("Transaction for session '%s' not found", sessionID))
	}
	return txn, nil
}

func (d Datasource) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.SubmissionID != "" {
		args = append(args, filter.SubmissionID)
		clauses = append(clauses, fmt.Sprintf("submission_id = $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + ` FROM registrly.transactions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return d.queryTransactions(ctx, query, args...)
}

// ClaimStalePendingTransactions stamps up to limit pending transactions
// created before createdBefore with checkedAt and returns them. Rows that were
// checked least recently come first, so repeated calls rotate through every
// unsettled transaction instead of returning the same oldest rows each time.
func (d Datasource) ClaimStalePendingTransactions(ctx context.Context, createdBefore, checkedAt time.Time, limit int) ([]model.Transaction, error) {
	return d.queryTransactions(ctx, `
		UPDATE registrly.transactions SET last_checked_at = $2
		WHERE id IN (
			SELECT id FROM registrly.transactions
			WHERE status = 'pending' AND created_at < $1
			ORDER BY last_checked_at ASC NULLS FIRST, created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+transactionColumns, createdBefore, checkedAt, limit)
}

func (d Datasource) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]model.Transaction, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list transactions", err)
	}
	defer rows.Close()

	transactions := []model.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list transactions", err)
	}
	return transactions, nil
}

func (d Datasource) CompletePayment(ctx context.Context, sessionID, paymentID string, paidAt time.Time, entry model.TimelineEntry) (string, model.SubmissionStatus, error) {
	ctx, span := otel.Tracer("registrly.database").Start(ctx, "Completing payment")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return "", "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer rollback(tx)

	var submissionID string
	err = tx.QueryRowContext(ctx, `
		UPDATE registrly.transactions
		SET status = 'completed', provider_payment_id = $2, paid_at = $3
		WHERE provider_session_id = $1 AND status <> 'completed'
		RETURNING submission_id`, sessionID, paymentID, paidAt).Scan(&submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Session '%s' already reconciled", sessionID), nil)
	}
	if err != nil {
		return "", "", apierror.FromDBError(err, fmt.Sprintf("Transaction for session '%s' not found", sessionID))
	}

	var current model.SubmissionStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM registrly.submissions WHERE submission_id = $1 FOR UPDATE`, submissionID).Scan(&current)
	if err != nil {
		return "", "", apierror.FromDBError(err, fmt.Sprintf("Submission with ID '%s' not found", submissionID))
	}

	next := current
	if current == model.StatusPending {
		next = model.StatusProcessing
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE registrly.submissions SET status = $2, payment_status = 'paid', last_updated = $3
		WHERE submission_id = $1`, submissionID, next, entry.Timestamp)
	if err != nil {
		return "", "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark submission paid", err)
	}

	entry.Status = string(next)
	if err := submissionHistory.insertEntry(ctx, tx, submissionID, entry); err != nil {
		return "", "", err
	}

	if err := tx.Commit(); err != nil {
		return "", "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return submissionID, next, nil
}

func (d Datasource) CloseTransaction(ctx context.Context, sessionID string, status model.TransactionStatus) (bool, error) {
	if status != model.TransactionFailed && status != model.TransactionExpired {
		return false, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("cannot close transaction as %s", status), nil)
	}
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE registrly.transactions SET status = $2
		WHERE provider_session_id = $1 AND status = 'pending'`, sessionID, status)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to close transaction", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return affected > 0, nil
}
