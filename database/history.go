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
	"fmt"

	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// history names the append-only timeline and note tables hanging off one parent table.
type history struct {
	timeline string
	notes    string
	key      string
}

var (
	submissionHistory = history{
		timeline: "registrly.submission_timeline",
		notes:    "registrly.submission_notes",
		key:      "submission_id",
	}
	contactHistory = history{
		timeline: "registrly.contact_timeline",
		notes:    "registrly.contact_notes",
		key:      "query_id",
	}
)

func (h history) insertEntry(ctx context.Context, ex execer, id string, entry model.TimelineEntry) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, status, message, updated_by, created_at) VALUES ($1, $2, $3, $4, $5)`, h.timeline, h.key)
	_, err := ex.ExecContext(ctx, query, id, entry.Status, entry.Message, entry.UpdatedBy, entry.Timestamp)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append timeline entry", err)
	}
	return nil
}

func (h history) insertNote(ctx context.Context, ex execer, id string, note model.AdminNote) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, note, author, created_at) VALUES ($1, $2, $3, $4)`, h.notes, h.key)
	_, err := ex.ExecContext(ctx, query, id, note.Note, note.Author, note.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append admin note", err)
	}
	return nil
}

func (h history) loadTimeline(ctx context.Context, db *sql.DB, id string) ([]model.TimelineEntry, error) {
	query := fmt.Sprintf(`SELECT id, status, message, updated_by, created_at FROM %s WHERE %s = $1 ORDER BY id ASC`, h.timeline, h.key)
	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load timeline", err)
	}
	defer rows.Close()

	entries := []model.TimelineEntry{}
	for rows.Next() {
		var e model.TimelineEntry
		if err := rows.Scan(&e.ID, &e.Status, &e.Message, &e.UpdatedBy, &e.Timestamp); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan timeline entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load timeline", err)
	}
	return entries, nil
}

func (h history) loadNotes(ctx context.Context, db *sql.DB, id string) ([]model.AdminNote, error) {
	query := fmt.Sprintf(`SELECT id, note, author, created_at FROM %s WHERE %s = $1 ORDER BY id ASC`, h.notes, h.key)
	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load admin notes", err)
	}
	defer rows.Close()

	notes := []model.AdminNote{}
	for rows.Next() {
		var n model.AdminNote
		if err := rows.Scan(&n.ID, &n.Note, &n.Author, &n.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan admin note", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load admin notes", err)
	}
	return notes, nil
}

// pageBounds clamps listing limits to [1, 100] with a default of 20.
func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
