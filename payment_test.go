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
	"testing"

	"github.com/hibiken/asynq"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/provider"
	"github.com/registrly/registrly/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckoutSession_ChargesRecordedTotal(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackAssisted, "ein", "registered-agent")
	f.ds.On("GetSubmission", mock.Anything, sub.SubmissionID).Return(sub, nil)

	f.provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p provider.SessionParams) bool {
		return p.SubmissionID == sub.SubmissionID &&
			p.AmountMinor == 44800 &&
			p.Currency == "usd" &&
			model.HasPrefix(p.TransactionID, model.TransactionPrefix) &&
			p.ExpiresAt.Equal(fixedNow.Add(testConfig().Payments.SessionTTL))
	})).Return(&provider.Session{ID: "cs_test_1", URL: "https://checkout.test/cs_test_1", Status: provider.SessionOpen}, nil)

	var recorded *model.Transaction
	f.ds.On("RecordTransaction", mock.Anything, mock.AnythingOfType("*model.Transaction")).Return(nil).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*model.Transaction) })

	session, err := f.r.CreateCheckoutSession(context.Background(), owner, CheckoutRequest{
		SubmissionID:       sub.SubmissionID,
		Track:              model.TrackAssisted,
		AdditionalServices: []string{"registered-agent", "ein"},
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", session.SessionID)
	assert.Equal(t, "https://checkout.test/cs_test_1", session.URL)
	require.NotNil(t, recorded)
	assert.Equal(t, session.TransactionID, recorded.TransactionID)
	assert.Equal(t, model.TransactionPending, recorded.Status)
	assert.True(t, mustDecimal("448").Equal(recorded.Amount))
	assert.Equal(t, "cs_test_1", recorded.ProviderSessionID)

	expiry := f.queue.ofType(TaskSessionExpiry)
	require.Len(t, expiry, 1)
	assert.Equal(t, "expiry:cs_test_1", optionValue(expiry[0].opts, asynq.TaskIDOpt))
	assert.Equal(t, "session_expiry", optionValue(expiry[0].opts, asynq.QueueOpt))
}

func TestCreateCheckoutSession_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.r.CreateCheckoutSession(ctx, owner, CheckoutRequest{})
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))

	f.ds.On("GetSubmission", mock.Anything, "sub_missing").Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "not found", nil))
	_, err = f.r.CreateCheckoutSession(ctx, owner, CheckoutRequest{SubmissionID: "sub_missing"})
	require.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
	apiErr, _ := apierror.As(err)
	assert.Equal(t, "submission not found", apiErr.Message)

	paid := sampleSubmission(model.TrackDIY)
	paid.PaymentStatus = model.PaymentPaid
	f.ds.On("GetSubmission", mock.Anything, paid.SubmissionID).Return(paid, nil)
	_, err = f.r.CreateCheckoutSession(ctx, owner, CheckoutRequest{SubmissionID: paid.SubmissionID})
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))

	cancelled := sampleSubmission(model.TrackDIY)
	cancelled.Status = model.StatusCancelled
	f.ds.On("GetSubmission", mock.Anything, cancelled.SubmissionID).Return(cancelled, nil)
	_, err = f.r.CreateCheckoutSession(ctx, owner, CheckoutRequest{SubmissionID: cancelled.SubmissionID})
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))

	diy := sampleSubmission(model.TrackDIY, "ein")
	f.ds.On("GetSubmission", mock.Anything, diy.SubmissionID).Return(diy, nil)
	_, err = f.r.CreateCheckoutSession(ctx, owner, CheckoutRequest{SubmissionID: diy.SubmissionID, Track: model.TrackAssisted})
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
	_, err = f.r.CreateCheckoutSession(ctx, owner, CheckoutRequest{SubmissionID: diy.SubmissionID, AdditionalServices: []string{"ein", "document-review"}})
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))

	_, err = f.r.CreateCheckoutSession(ctx, model.Actor{ID: "intruder", Role: model.RoleUser}, CheckoutRequest{SubmissionID: diy.SubmissionID})
	assert.True(t, apierror.HasCode(err, apierror.ErrForbidden))

	f.provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestCreateCheckoutSession_ProviderUnavailable(t *testing.T) {
	f := newFixture(t)
	sub := sampleSubmission(model.TrackDIY)
	f.ds.On("GetSubmission", mock.Anything, sub.SubmissionID).Return(sub, nil)
	f.provider.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrUpstreamUnavailable, "provider unavailable", nil))

	_, err := f.r.CreateCheckoutSession(context.Background(), owner, CheckoutRequest{SubmissionID: sub.SubmissionID})
	assert.True(t, apierror.IsRetryable(err))
	f.ds.AssertNotCalled(t, "RecordTransaction", mock.Anything, mock.Anything)
}
