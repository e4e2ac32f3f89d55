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
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/search"
	"github.com/registrly/registrly/model"
	"github.com/sirupsen/logrus"
)

var contactMessages = map[model.ContactStatus]string{
	model.ContactPending:    "Query received",
	model.ContactInProgress: "Query is being handled",
	model.ContactResolved:   "Query resolved",
	model.ContactClosed:     "Query closed",
}

// ContactInput is a public contact form submission.
type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Validate checks the required fields, their lengths and the email format.
func (c ContactInput) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.Email, validation.Required, validation.Match(emailPattern)),
		validation.Field(&c.Subject, validation.Required, validation.Length(1, 300)),
		validation.Field(&c.Message, validation.Required, validation.Length(1, 5000)),
	)
}

// CreateContactQuery is public; actor may be anonymous.
func (r *Registrly) CreateContactQuery(ctx context.Context, actor model.Actor, in ContactInput) (*model.ContactQuery, error) {
	if err := in.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "contact query is invalid", err)
	}

	now := r.clock()
	q := &model.ContactQuery{
		QueryID:     model.GenerateUUIDWithSuffix(model.ContactQueryPrefix),
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.TrimSpace(in.Email),
		Subject:     strings.TrimSpace(in.Subject),
		Message:     in.Message,
		Status:      model.ContactPending,
		CreatedAt:   now,
		LastUpdated: now,
	}
	by := actor.ID
	if by == "" {
		by = q.Email
	}
	entry := model.TimelineEntry{Status: string(q.Status), Message: contactMessages[q.Status], Timestamp: now, UpdatedBy: by}
	if err := r.datasource.CreateContactQuery(ctx, q, entry); err != nil {
		return nil, err
	}
	q.Timeline = []model.TimelineEntry{entry}

	logrus.WithField("query_id", q.QueryID).Info("contact query created")
	r.indexDocument(ctx, search.CollectionContactQueries, search.ContactQueryDocument(q))
	r.SendWebhook(ctx, EventContactCreated, q)
	return q, nil
}

// GetContactQuery returns a contact query with its timeline and notes.
//
// Parameters:
// - ctx: The context for the operation.
// - actor: The caller; must be an admin.
// - id: The query ID.
//
// Returns:
// - *model.ContactQuery: The query with Timeline and AdminNotes loaded.
// - error: FORBIDDEN for non-admins, NOT_FOUND for an unknown id.
func (r *Registrly) GetContactQuery(ctx context.Context, actor model.Actor, id string) (*model.ContactQuery, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return r.loadContactQuery(ctx, id)
}

func (r *Registrly) loadContactQuery(ctx context.Context, id string) (*model.ContactQuery, error) {
	q, err := r.datasource.GetContactQuery(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Timeline, err = r.datasource.GetContactTimeline(ctx, id); err != nil {
		return nil, err
	}
	if q.AdminNotes, err = r.datasource.GetContactNotes(ctx, id); err != nil {
		return nil, err
	}
	return q, nil
}

// ListContactQueries returns contact queries matching filter, newest first.
func (r *Registrly) ListContactQueries(ctx context.Context, actor model.Actor, filter model.ContactFilter) ([]model.ContactQuery, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, invalidInput("unknown contact status %q", filter.Status)
	}
	return r.datasource.ListContactQueries(ctx, filter)
}

// TransitionContactQuery follows the submission contract: one timeline entry
// per change, optional admin note, no adjacency rules.
func (r *Registrly) TransitionContactQuery(ctx context.Context, actor model.Actor, id string, status model.ContactStatus, note string, addNote bool) (*model.ContactQuery, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, invalidInput("unknown contact status %q", status)
	}

	now := r.clock()
	note = strings.TrimSpace(note)
	message := note
	if message == "" {
		message = contactMessages[status]
	}
	entry := model.TimelineEntry{Status: string(status), Message: message, Timestamp: now, UpdatedBy: actor.ID}
	var adminNote *model.AdminNote
	if addNote && note != "" {
		adminNote = &model.AdminNote{Note: note, Author: actor.ID, CreatedAt: now}
	}

	if err := r.datasource.TransitionContactQuery(ctx, id, status, entry, adminNote); err != nil {
		return nil, err
	}
	q, err := r.GetContactQuery(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	r.indexDocument(ctx, search.CollectionContactQueries, search.ContactQueryDocument(q))
	r.SendWebhook(ctx, EventContactStatusChanged, q)
	return q, nil
}

// AddContactNote appends an admin note to a contact query and returns the
// query with its notes.
func (r *Registrly) AddContactNote(ctx context.Context, actor model.Actor, id, text string) (*model.ContactQuery, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalidInput("note is required")
	}
	note := model.AdminNote{Note: text, Author: actor.ID, CreatedAt: r.clock()}
	if err := r.datasource.AddContactNote(ctx, id, note); err != nil {
		return nil, err
	}
	return r.loadContactQuery(ctx, id)
}

// GetContactTimeline returns a contact query's status history.
func (r *Registrly) GetContactTimeline(ctx context.Context, actor model.Actor, id string) ([]model.TimelineEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return r.datasource.GetContactTimeline(ctx, id)
}
