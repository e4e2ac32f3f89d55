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
	"fmt"

	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/model"
)

const contactColumns = `query_id, name, email, subject, message, status, created_at, last_updated`

func scanContactQuery(row rowScanner) (*model.ContactQuery, error) {
	q := &model.ContactQuery{}
	err := row.Scan(&q.QueryID, &q.Name, &q.Email, &q.Subject, &q.Message, &q.Status, &q.CreatedAt, &q.LastUpdated)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (d Datasource) CreateContactQuery(ctx context.Context, q *model.ContactQuery, entry model.TimelineEntry) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO registrly.contact_queries (`+contactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.QueryID, q.Name, q.Email, q.Subject, q.Message, q.Status, q.CreatedAt, q.LastUpdated,
	)
	if err != nil {
		return apierror.FromDBError(err, "contact query not found")
	}
	if err := contactHistory.insertEntry(ctx, tx, q.QueryID, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

func (d Datasource) GetContactQuery(ctx context.Context, id string) (*model.ContactQuery, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM registrly.contact_queries WHERE query_id = $1`, id)
	q, err := scanContactQuery(row)
	if err != nil {
		return nil, apierror.FromDBError(err, fmt.Sprintf("Contact query with ID '%s' not found", id))
	}
	return q, nil
}

func (d Datasource) ListContactQueries(ctx context.Context, filter model.ContactFilter) ([]model.ContactQuery, error) {
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := `SELECT ` + contactColumns + ` FROM registrly.contact_queries`
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += " WHERE status = $1"
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list contact queries", err)
	}
	defer rows.Close()

	queries := []model.ContactQuery{}
	for rows.Next() {
		q, err := scanContactQuery(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan contact query", err)
		}
		queries = append(queries, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list contact queries", err)
	}
	return queries, nil
}

func (d Datasource) TransitionContactQuery(ctx context.Context, id string, to model.ContactStatus, entry model.TimelineEntry, note *model.AdminNote) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, `
		UPDATE registrly.contact_queries SET status = $2, last_updated = $3
		WHERE query_id = $1`, id, to, entry.Timestamp)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update contact query status", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Contact query with ID '%s' not found", id), nil)
	}

	if err := contactHistory.insertEntry(ctx, tx, id, entry); err != nil {
		return err
	}
	if note != nil {
		if err := contactHistory.insertNote(ctx, tx, id, *note); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

func (d Datasource) AddContactNote(ctx context.Context, id string, note model.AdminNote) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, `UPDATE registrly.contact_queries SET last_updated = $2 WHERE query_id = $1`, id, note.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to touch contact query", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Contact query with ID '%s' not found", id), nil)
	}
	if err := contactHistory.insertNote(ctx, tx, id, note); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

func (d Datasource) GetContactTimeline(ctx context.Context, id string) ([]model.TimelineEntry, error) {
	return contactHistory.loadTimeline(ctx, d.Conn, id)
}

func (d Datasource) GetContactNotes(ctx context.Context, id string) ([]model.AdminNote, error) {
	return contactHistory.loadNotes(ctx, d.Conn, id)
}
