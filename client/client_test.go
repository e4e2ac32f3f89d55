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
package client

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "https://api.registrly.test"

var session = Session{Token: "token-user-1"}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	return New(baseURL + "/")
}

func submissionJSON(id string, payment model.PaymentStatus) map[string]interface{} {
	return map[string]interface{}{
		"submission_id":  id,
		"user_id":        "user_1",
		"track":          "ASSISTED",
		"status":         "pending",
		"payment_status": string(payment),
		"total_amount":   "448",
		"currency":       "usd",
	}
}

func TestCreateSubmission_SendsBearerToken(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/submissions", func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer token-user-1" {
			return httpmock.NewJsonResponse(http.StatusUnauthorized, map[string]string{"code": "UNAUTHORIZED", "error": "Authentication required"})
		}
		return httpmock.NewJsonResponse(http.StatusCreated, submissionJSON("sub_1", model.PaymentUnpaid))
	})

	sub, err := c.CreateSubmission(context.Background(), session, model.SubmissionInput{Track: model.TrackAssisted})
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.SubmissionID)
	assert.True(t, decimal.NewFromInt(448).Equal(sub.TotalAmount))

	_, err = c.CreateSubmission(context.Background(), Session{}, model.SubmissionInput{Track: model.TrackAssisted})
	assert.True(t, apierror.HasCode(err, apierror.ErrUnauthorized))
}

func TestSubmitDraft_OnlyOnce(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/submissions",
		httpmock.NewJsonResponderOrPanic(http.StatusCreated, submissionJSON("sub_1", model.PaymentUnpaid)))
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/submissions/sub_1",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, submissionJSON("sub_1", model.PaymentUnpaid)))

	d := completeAssistedDraft(t)
	first, err := c.SubmitDraft(context.Background(), session, d)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", d.SubmissionID())

	second, err := c.SubmitDraft(context.Background(), session, d)
	require.NoError(t, err)
	assert.Equal(t, first.SubmissionID, second.SubmissionID)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+baseURL+"/submissions"])
	assert.Equal(t, 1, info["GET "+baseURL+"/submissions/sub_1"])
}

func TestSubmitDraft_IncompleteDraftStaysLocal(t *testing.T) {
	c := newTestClient(t)
	d := NewDraft()
	require.NoError(t, d.SetTrack(model.TrackAssisted))

	_, err := c.SubmitDraft(context.Background(), session, d)
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      interface{}
		code      apierror.ErrorCode
		retryable bool
	}{
		{name: "api code wins", status: http.StatusConflict, body: map[string]string{"code": "CONFLICT", "error": "submission is already paid"}, code: apierror.ErrConflict},
		{name: "validation", status: http.StatusBadRequest, body: map[string]interface{}{"code": "INVALID_INPUT", "error": "submission is invalid", "details": map[string]string{"track": "cannot be blank"}}, code: apierror.ErrInvalidInput},
		{name: "rate limited without code", status: http.StatusTooManyRequests, body: map[string]string{"error": "slow down"}, code: apierror.ErrUpstreamUnavailable, retryable: true},
		{name: "provider down", status: http.StatusServiceUnavailable, body: map[string]string{"code": "UPSTREAM_UNAVAILABLE", "error": "payment provider unavailable"}, code: apierror.ErrUpstreamUnavailable, retryable: true},
		{name: "forbidden", status: http.StatusForbidden, body: map[string]string{"error": "Admin access required"}, code: apierror.ErrForbidden},
		{name: "server error", status: http.StatusInternalServerError, body: map[string]string{}, code: apierror.ErrInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t)
			httpmock.RegisterResponder(http.MethodPost, baseURL+"/payments/create-checkout-session",
				httpmock.NewJsonResponderOrPanic(tt.status, tt.body))

			_, err := c.CreateCheckoutSession(context.Background(), session, "sub_1")
			require.Error(t, err)
			apiErr, ok := apierror.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
			assert.Equal(t, tt.retryable, apierror.IsRetryable(err))
		})
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/payments/create-checkout-session",
		httpmock.NewJsonResponderOrPanic(http.StatusCreated, map[string]interface{}{
			"session_id":     "cs_test_1",
			"url":            "https://checkout.test/cs_test_1",
			"transaction_id": "txn_1",
			"amount":         "448",
			"currency":       "usd",
		}))

	out, err := c.CreateCheckoutSession(context.Background(), session, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", out.SessionID)
	assert.Equal(t, "https://checkout.test/cs_test_1", out.URL)
}

func TestVerifySession(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/payments/verify-session/cs_test_1",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
			"session_id":     "cs_test_1",
			"submission_id":  "sub_1",
			"payment_status": "paid",
			"session_status": "complete",
		}))

	out, err := c.VerifySession(context.Background(), session, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, out.PaymentStatus)
}

func TestQuote(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, baseURL+"/pricing/quote", func(req *http.Request) (*http.Response, error) {
		assert.Empty(t, req.Header.Get("Authorization"))
		return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
			"track":                 "DIY",
			"total":                 "99",
			"unrecognized_services": []string{"foo"},
		})
	})

	quote, err := c.Quote(context.Background(), model.TrackDIY, []string{"foo"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(99).Equal(quote.Total))
	assert.Equal(t, []string{"foo"}, quote.Unrecognized)
}

func TestUnreachableIsRetryable(t *testing.T) {
	c := newTestClient(t)
	_, err := c.GetSubmission(context.Background(), session, "sub_1")
	assert.True(t, apierror.IsRetryable(err))
}

func fastPoll() AwaitOptions {
	return AwaitOptions{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Budget: time.Second}
}

func TestAwaitPayment(t *testing.T) {
	c := newTestClient(t)
	var calls int32
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/submissions/sub_1", func(req *http.Request) (*http.Response, error) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return httpmock.NewJsonResponse(http.StatusOK, submissionJSON("sub_1", model.PaymentUnpaid))
		case 2:
			return httpmock.NewJsonResponse(http.StatusServiceUnavailable, map[string]string{"code": "UPSTREAM_UNAVAILABLE", "error": "try again"})
		case 3:
			return httpmock.NewJsonResponse(http.StatusOK, submissionJSON("sub_1", model.PaymentPending))
		default:
			return httpmock.NewJsonResponse(http.StatusOK, submissionJSON("sub_1", model.PaymentPaid))
		}
	})

	sub, err := c.AwaitPayment(context.Background(), session, "sub_1", fastPoll())
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, sub.PaymentStatus)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestAwaitPayment_BudgetRunsOut(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/submissions/sub_1",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, submissionJSON("sub_1", model.PaymentUnpaid)))

	opts := AwaitOptions{InitialInterval: 5 * time.Millisecond, MaxInterval: 10 * time.Millisecond, Budget: 50 * time.Millisecond}
	sub, err := c.AwaitPayment(context.Background(), session, "sub_1", opts)
	assert.ErrorIs(t, err, ErrPaymentPending)
	require.NotNil(t, sub)
	assert.Equal(t, model.PaymentUnpaid, sub.PaymentStatus)

	calls := httpmock.GetCallCountInfo()["GET "+baseURL+"/submissions/sub_1"]
	assert.Greater(t, calls, 1)
	assert.Less(t, calls, 50)
}

func TestAwaitPayment_StopsOnPermanentError(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/submissions/sub_1",
		httpmock.NewJsonResponderOrPanic(http.StatusForbidden, map[string]string{"code": "FORBIDDEN", "error": "submission belongs to another user"}))

	_, err := c.AwaitPayment(context.Background(), session, "sub_1", fastPoll())
	assert.True(t, apierror.HasCode(err, apierror.ErrForbidden))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestAwaitPayment_ContextCancelled(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/submissions/sub_1",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, submissionJSON("sub_1", model.PaymentPending)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	opts := AwaitOptions{InitialInterval: 5 * time.Millisecond, MaxInterval: 10 * time.Millisecond, Budget: time.Minute}
	_, err := c.AwaitPayment(ctx, session, "sub_1", opts)
	assert.Error(t, err)
}
