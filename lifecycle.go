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
	"strings"

	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var defaultMessages = map[model.SubmissionStatus]string{
	model.StatusPending:    "Submission received",
	model.StatusProcessing: "Submission is being processed",
	model.StatusReview:     "Submission is under review",
	model.StatusApproved:   "Submission approved",
	model.StatusCompleted:  "Registration completed",
	model.StatusRejected:   "Submission rejected",
	model.StatusCancelled:  "Submission cancelled",
}

// happyPath is the forward order enforced in strict mode.
var happyPath = []model.SubmissionStatus{
	model.StatusPending,
	model.StatusProcessing,
	model.StatusReview,
	model.StatusApproved,
	model.StatusCompleted,
}

// DefaultMessage is the timeline message used when a transition carries no note.
func DefaultMessage(status model.SubmissionStatus) string {
	if msg, ok := defaultMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("Status changed to %s", status)
}

func pathIndex(status model.SubmissionStatus) int {
	for i, s := range happyPath {
		if s == status {
			return i
		}
	}
	return -1
}

// CheckTransition applies the strict-mode graph: forward moves along the happy
// path, rejected or cancelled from any non-terminal state, nothing out of a
// terminal state.
func CheckTransition(from, to model.SubmissionStatus) error {
	if from.IsTerminal() {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("submission is %s and can no longer change status", from), nil)
	}
	if to == model.StatusRejected || to == model.StatusCancelled {
		return nil
	}
	if pathIndex(to) <= pathIndex(from) {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("cannot move submission from %s to %s", from, to), nil)
	}
	return nil
}

// TransitionRequest is an admin status change.
type TransitionRequest struct {
	Status  model.SubmissionStatus
	Note    string
	AddNote bool
}

// Transition sets the submission status and appends exactly one timeline
// entry, plus an admin note when requested, in one database transaction.
func (r *Registrly) Transition(ctx context.Context, actor model.Actor, submissionID string, req TransitionRequest) (*model.Submission, error) {
	ctx, span := tracer.Start(ctx, "Transitioning submission")
	defer span.End()
	span.SetAttributes(attribute.String("submission.id", submissionID), attribute.String("submission.status", string(req.Status)))

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !req.Status.IsValid() {
		return nil, invalidInput("unknown status %q", req.Status)
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	var expected model.SubmissionStatus
	if cfg.Lifecycle.EnforceTransitions {
		current, err := r.datasource.GetSubmission(ctx, submissionID)
		if err != nil {
			return nil, err
		}
		if err := CheckTransition(current.Status, req.Status); err != nil {
			return nil, err
		}
		expected = current.Status
	}

	now := r.clock()
	note := strings.TrimSpace(req.Note)
	message := note
	if message == "" {
		message = DefaultMessage(req.Status)
	}
	entry := model.TimelineEntry{Status: string(req.Status), Message: message, Timestamp: now, UpdatedBy: actor.ID}

	var adminNote *model.AdminNote
	if req.AddNote && note != "" {
		adminNote = &model.AdminNote{Note: note, Author: actor.ID, CreatedAt: now}
	}

	if err := r.datasource.TransitionSubmission(ctx, submissionID, expected, req.Status, entry, adminNote); err != nil {
		return nil, err
	}

	sub, err := r.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"submission_id": submissionID, "status": req.Status, "actor": actor.ID}).Info("submission transitioned")
	r.submissionChanged(ctx, sub, EventSubmissionStatusChanged)
	return sub, nil
}

// GetTimeline returns the submission's timeline in insertion order.
func (r *Registrly) GetTimeline(ctx context.Context, actor model.Actor, submissionID string) ([]model.TimelineEntry, error) {
	sub, err := r.getSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, sub); err != nil {
		return nil, err
	}
	return r.datasource.GetSubmissionTimeline(ctx, submissionID)
}

// AddNote appends an admin note without touching the status.
//
// Parameters:
// - ctx: The context for the operation.
// - actor: The caller; must be an admin.
// - submissionID: The submission to annotate.
// - text: The note body; surrounding whitespace is trimmed.
//
// Returns:
// - *model.Submission: The submission with its full notes array.
// - error: FORBIDDEN for non-admins, INVALID_INPUT for an empty note.
func (r *Registrly) AddNote(ctx context.Context, actor model.Actor, submissionID, text string) (*model.Submission, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalidInput("note is required")
	}
	note := model.AdminNote{Note: text, Author: actor.ID, CreatedAt: r.clock()}
	if err := r.datasource.AddSubmissionNote(ctx, submissionID, note); err != nil {
		return nil, err
	}
	r.invalidateSubmission(ctx, submissionID)
	r.SendWebhook(ctx, EventSubmissionNoteAdded, map[string]interface{}{"submission_id": submissionID, "note": note})
	return r.loadSubmission(ctx, submissionID)
}
