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
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/search"
	"github.com/registrly/registrly/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const submissionCacheTTL = 10 * time.Minute

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ().-]{7,20}$`)
)

func submissionCacheKey(id string) string {
	return "submission:" + id
}

func validateAddress(value interface{}) error {
	a, _ := value.(*model.Address)
	if a == nil {
		return nil
	}
	return validation.ValidateStruct(a,
		validation.Field(&a.Line1, validation.Required),
		validation.Field(&a.City, validation.Required),
		validation.Field(&a.State, validation.Required),
		validation.Field(&a.Zip, validation.Required, validation.Length(3, 12)),
	)
}

// ValidateSubmissionInput checks the fields each track requires. Both tracks
// need a business name, entity type and contact email; ASSISTED also needs the
// industry, a description, a contact phone and a personal address.
func ValidateSubmissionInput(in model.SubmissionInput) error {
	assisted := in.Track == model.TrackAssisted
	p := in.BusinessProfile
	a := in.Addresses

	errs := validation.Errors{
		"track": validation.Validate(in.Track, validation.Required, validation.In(model.TrackDIY, model.TrackAssisted)),
		"business_profile": validation.ValidateStruct(&p,
			validation.Field(&p.Name, validation.Required, validation.Length(2, 200)),
			validation.Field(&p.EntityType, validation.Required),
			validation.Field(&p.ContactEmail, validation.Required, validation.Match(emailPattern)),
			validation.Field(&p.Industry, validation.When(assisted, validation.Required)),
			validation.Field(&p.Description, validation.When(assisted, validation.Required, validation.Length(10, 2000))),
			validation.Field(&p.ContactPhone, validation.When(assisted, validation.Required), validation.Match(phonePattern)),
		),
		"addresses": validation.ValidateStruct(&a,
			validation.Field(&a.Personal, validation.When(assisted, validation.Required), validation.By(validateAddress)),
			validation.Field(&a.Business, validation.By(validateAddress)),
		),
	}
	return errs.Filter()
}

// CreateSubmission validates the wizard payload, prices it on the server and
// persists it together with its first timeline entry.
func (r *Registrly) CreateSubmission(ctx context.Context, actor model.Actor, in model.SubmissionInput) (*model.Submission, error) {
	ctx, span := tracer.Start(ctx, "Creating submission")
	defer span.End()

	if actor.ID == "" {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "authentication required", nil)
	}
	if err := ValidateSubmissionInput(in); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "submission is invalid", err)
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	quote, err := QuoteServices(in.Track, in.AdditionalServices)
	if err != nil {
		return nil, err
	}
	if len(quote.Unrecognized) > 0 && cfg.Pricing.RejectUnknownServices {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "unknown additional services", map[string]interface{}{
			"unrecognized_services": quote.Unrecognized,
			"suggestions":           quote.Suggestions,
		})
	}

	now := r.clock()
	sub := &model.Submission{
		SubmissionID:         model.GenerateUUIDWithSuffix(model.SubmissionPrefix),
		DraftID:              in.DraftID,
		UserID:               actor.ID,
		Track:                in.Track,
		Status:               model.StatusPending,
		PaymentStatus:        model.PaymentUnpaid,
		BusinessProfile:      in.BusinessProfile,
		Addresses:            in.Addresses.Resolve(),
		AdditionalServices:   model.NormalizeServices(in.AdditionalServices),
		UnrecognizedServices: quote.Unrecognized,
		TotalAmount:          ComputeTotal(in.Track, in.AdditionalServices).Decimal(),
		Currency:             cfg.Payments.Currency,
		MetaData:             in.MetaData,
		CreatedAt:            now,
		LastUpdated:          now,
	}
	entry := model.TimelineEntry{
		Status:    string(model.StatusPending),
		Message:   DefaultMessage(model.StatusPending),
		Timestamp: now,
		UpdatedBy: actor.ID,
	}

	if err := r.datasource.CreateSubmission(ctx, sub, entry); err != nil {
		return nil, err
	}
	sub.Timeline = []model.TimelineEntry{entry}
	span.SetAttributes(attribute.String("submission.id", sub.SubmissionID))

	logrus.WithFields(logrus.Fields{
		"submission_id": sub.SubmissionID,
		"track":         sub.Track,
		"total":         sub.TotalAmount.StringFixed(2),
	}).Info("submission created")

	r.submissionChanged(ctx, sub, EventSubmissionCreated)
	r.analytics.Capture(actor.ID, "submission_created", map[string]interface{}{
		"track":            string(sub.Track),
		"services":         sub.AdditionalServices,
		"total":            sub.TotalAmount.StringFixed(2),
		"has_unrecognized": len(sub.UnrecognizedServices) > 0,
	})
	return sub, nil
}

// GetSubmission returns the submission with its timeline and notes if actor may see it.
func (r *Registrly) GetSubmission(ctx context.Context, actor model.Actor, id string) (*model.Submission, error) {
	sub, err := r.getSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// getSubmission reads through the cache.
func (r *Registrly) getSubmission(ctx context.Context, id string) (*model.Submission, error) {
	if r.cache != nil {
		var cached model.Submission
		found, err := r.cache.Get(ctx, submissionCacheKey(id), &cached)
		if err != nil {
			logrus.WithError(err).WithField("submission_id", id).Warn("submission cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	sub, err := r.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, submissionCacheKey(id), sub, submissionCacheTTL); err != nil {
			logrus.WithError(err).WithField("submission_id", id).Warn("submission cache write failed")
		}
	}
	return sub, nil
}

// loadSubmission reads the submission and its history from the database.
func (r *Registrly) loadSubmission(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := r.datasource.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Timeline, err = r.datasource.GetSubmissionTimeline(ctx, id); err != nil {
		return nil, err
	}
	if sub.AdminNotes, err = r.datasource.GetSubmissionNotes(ctx, id); err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *Registrly) invalidateSubmission(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, submissionCacheKey(id)); err != nil {
		logrus.WithError(err).WithField("submission_id", id).Warn("submission cache invalidation failed")
	}
}

// submissionChanged runs the side effects of every submission mutation.
func (r *Registrly) submissionChanged(ctx context.Context, sub *model.Submission, event string) {
	r.invalidateSubmission(ctx, sub.SubmissionID)
	r.indexDocument(ctx, search.CollectionSubmissions, search.SubmissionDocument(sub))
	r.SendWebhook(ctx, event, sub)
}

func (r *Registrly) indexDocument(ctx context.Context, collection string, doc map[string]interface{}) {
	if r.queue == nil {
		return
	}
	if err := r.queue.EnqueueIndex(ctx, collection, doc); err != nil {
		logrus.WithError(err).WithField("collection", collection).Warn("failed to enqueue search indexing")
	}
}

// ListSubmissions is the admin listing.
func (r *Registrly) ListSubmissions(ctx context.Context, actor model.Actor, filter model.SubmissionFilter) ([]model.Submission, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, invalidInput("unknown status %q", filter.Status)
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.IsValid() {
		return nil, invalidInput("unknown payment status %q", filter.PaymentStatus)
	}
	if filter.Track != "" && !filter.Track.IsValid() {
		return nil, invalidInput("unknown track %q", filter.Track)
	}
	return r.datasource.ListSubmissions(ctx, filter)
}

// ListUserSubmissions lists the actor's own submissions.
func (r *Registrly) ListUserSubmissions(ctx context.Context, actor model.Actor, limit, offset int) ([]model.Submission, error) {
	if actor.ID == "" {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "authentication required", nil)
	}
	return r.datasource.ListSubmissions(ctx, model.SubmissionFilter{UserID: actor.ID, Limit: limit, Offset: offset})
}

// ListTransactions returns checkout transactions matching filter.
//
// Parameters:
// - ctx: The context for the operation.
// - actor: The caller; must be an admin.
// - filter: Optional status, submission and paging constraints.
//
// Returns:
// - []model.Transaction: The matching transactions, newest first.
// - error: FORBIDDEN for non-admins, INVALID_INPUT for an unknown status.
func (r *Registrly) ListTransactions(ctx context.Context, actor model.Actor, filter model.TransactionFilter) ([]model.Transaction, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, invalidInput("unknown status %q", filter.Status)
	}
	return r.datasource.ListTransactions(ctx, filter)
}

// GetTransaction returns a single transaction by its ID.
func (r *Registrly) GetTransaction(ctx context.Context, actor model.Actor, id string) (*model.Transaction, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return r.datasource.GetTransaction(ctx, id)
}

// ListSubmissionTransactions returns every checkout attempt for a submission.
func (r *Registrly) ListSubmissionTransactions(ctx context.Context, actor model.Actor, submissionID string) ([]model.Transaction, error) {
	sub, err := r.getSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, sub); err != nil {
		return nil, err
	}
	return r.datasource.ListTransactions(ctx, model.TransactionFilter{SubmissionID: submissionID, Limit: 100})
}
