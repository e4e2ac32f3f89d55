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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/model"
	"go.opentelemetry.io/otel"
)

const submissionColumns = `submission_id, draft_id, user_id, track, status, payment_status, business_profile, addresses,
	additional_services, unrecognized_services, total_amount, currency, meta_data, created_at, last_updated`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	sub := &model.Submission{}
	var profileJSON, addressesJSON, metaDataJSON []byte
	err := row.Scan(
		&sub.SubmissionID, &sub.DraftID, &sub.UserID, &sub.Track, &sub.Status, &sub.PaymentStatus,
		&profileJSON, &addressesJSON,
		pq.Array(&sub.AdditionalServices), pq.Array(&sub.UnrecognizedServices),
		&sub.TotalAmount, &sub.Currency, &metaDataJSON, &sub.CreatedAt, &sub.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	if len(profileJSON) > 0 {
		if err := json.Unmarshal(profileJSON, &sub.BusinessProfile); err != nil {
			return nil, err
		}
	}
	if len(addressesJSON) > 0 {
		if err := json.Unmarshal(addressesJSON, &sub.Addresses); err != nil {
			return nil, err
		}
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &sub.MetaData); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func (d Datasource) CreateSubmission(ctx context.Context, sub *model.Submission, entry model.TimelineEntry) error {
	ctx, span := otel.Tracer("registrly.database").Start(ctx, "Saving submission to db")
	defer span.End()

	profileJSON, err := json.Marshal(sub.BusinessProfile)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal business profile", err)
	}
	addressesJSON, err := json.Marshal(sub.Addresses)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal addresses", err)
	}
	metaDataJSON, err := json.Marshal(sub.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO registrly.submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		sub.SubmissionID, sub.DraftID, sub.UserID, sub.Track, sub.Status, sub.PaymentStatus,
		profileJSON, addressesJSON, pq.Array(nonNil(sub.AdditionalServices)), pq.Array(nonNil(sub.UnrecognizedServices)),
		sub.TotalAmount, sub.Currency, metaDataJSON, sub.CreatedAt, sub.LastUpdated,
	)
	if err != nil {
		return apierror.FromDBError(err, "submission not found")
	}

	if err := submissionHistory.insertEntry(ctx, tx, sub.SubmissionID, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

func (d Datasource) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM registrly.submissions WHERE submission_id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, apierror.FromDBError(err, fmt.Sprintf("Submission with ID '%s' not found", id))
	}
	return sub, nil
}

func (d Datasource) ListSubmissions(ctx context.Context, filter model.SubmissionFilter) ([]model.Submission, error) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.PaymentStatus != "" {
		add("payment_status", filter.PaymentStatus)
	}
	if filter.Track != "" {
		add("track", filter.Track)
	}
	if filter.UserID != "" {
		add("user_id", filter.UserID)
	}

	query := `SELECT ` + submissionColumns + ` FROM registrly.submissions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list submissions", err)
	}
	defer rows.Close()

	submissions := []model.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan submission", err)
		}
		submissions = append(submissions, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list submissions", err)
	}
	return submissions, nil
}

func (d Datasource) TransitionSubmission(ctx context.Context, id string, expected, to model.SubmissionStatus, entry model.TimelineEntry, note *model.AdminNote) error {
	ctx, span := otel.Tracer("registrly.database").Start(ctx, "Transitioning submission")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer rollback(tx)

	var result sql.Result
	if expected != "" {
		result, err = tx.ExecContext(ctx, `
			UPDATE registrly.submissions SET status = $2, last_updated = $3
			WHERE submission_id = $1 AND status = $4`, id, to, entry.Timestamp, expected)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE registrly.submissions SET status = $2, last_updated = $3
			WHERE submission_id = $1`, id, to, entry.Timestamp)
	}
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update submission status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if affected == 0 {
		if expected != "" {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Submission '%s' is no longer %s", id, expected), nil)
		}
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Submission with ID '%s' not found", id), nil)
	}

	if err := submissionHistory.insertEntry(ctx, tx, id, entry); err != nil {
		return err
	}
	if note != nil {
		if err := submissionHistory.insertNote(ctx, tx, id, *note); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

func (d Datasource) AddSubmissionNote(ctx context.Context, id string, note model.AdminNote) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, `UPDATE registrly.submissions SET last_updated = $2 WHERE submission_id = $1`, id, note.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to touch submission", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Submission with ID '%s' not found", id), nil)
	}
	if err := submissionHistory.insertNote(ctx, tx, id, note); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

func (d Datasource) GetSubmissionTimeline(ctx context.Context, id string) ([]model.TimelineEntry, error) {
	return submissionHistory.loadTimeline(ctx, d.Conn, id)
}

func (d Datasource) GetSubmissionNotes(ctx context.Context, id string) ([]model.AdminNote, error) {
	return submissionHistory.loadNotes(ctx, d.Conn, id)
}

func (d Datasource) UpdatePaymentStatus(ctx context.Context, id string, from, to model.PaymentStatus) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE registrly.submissions SET payment_status = $3, last_updated = NOW()
		WHERE submission_id = $1 AND payment_status = $2`, id, from, to)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update payment status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return affected > 0, nil
}
