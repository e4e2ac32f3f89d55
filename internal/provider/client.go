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

package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
)

const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// Client implements Provider with the Stripe SDK. The SDK's own network
// retries are disabled; retries run through backoff so they follow
// payments.max_retries and the caller's context.
type Client struct {
	sessions     session.Client
	maxRetries   uint64
	retryInitial time.Duration
}

func NewClient(cfg config.PaymentConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logrus.StandardLogger(),
	}
	if cfg.ProviderBaseURL != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(cfg.ProviderBaseURL, "/"))
	}
	return &Client{
		sessions: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
			Key: cfg.SecretKey,
		},
		maxRetries:   cfg.MaxRetries,
		retryInitial: 200 * time.Millisecond,
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	sp := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withSessionPlaceholder(params.SuccessURL)),
		CancelURL:         stripe.String(params.CancelURL),
		ClientReferenceID: stripe.String(params.SubmissionID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(params.Currency)),
				UnitAmount: stripe.Int64(params.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(params.ProductName),
				},
			},
		}},
	}
	if params.CustomerEmail != "" {
		sp.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	if !params.ExpiresAt.IsZero() {
		sp.ExpiresAt = stripe.Int64(params.ExpiresAt.Unix())
	}
	sp.Context = ctx
	sp.AddMetadata("submission_id", params.SubmissionID)
	sp.AddMetadata("transaction_id", params.TransactionID)
	if params.TransactionID != "" {
		sp.SetIdempotencyKey(params.TransactionID)
	}

	var created *stripe.CheckoutSession
	err := c.retry(ctx, "create checkout session", func() error {
		var err error
		created, err = c.sessions.New(sp)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create checkout session for %s", params.SubmissionID)
	}
	return fromCheckoutSession(created), nil
}

func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "session id is required", nil)
	}
	sp := &stripe.CheckoutSessionParams{}
	sp.Context = ctx

	var found *stripe.CheckoutSession
	err := c.retry(ctx, "retrieve checkout session", func() error {
		var err error
		found, err = c.sessions.Get(sessionID, sp)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "retrieve checkout session %s", sessionID)
	}
	return fromCheckoutSession(found), nil
}

// retry runs call with exponential backoff. Transport failures, 429 and 5xx
// are retried; any other provider error is returned at once.
func (c *Client) retry(ctx context.Context, operation string, call func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := mapProviderError(call())
		if err != nil && apierror.IsRetryable(err) {
			logrus.WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt,
			}).WithError(err).Warn("payment provider call failed, retrying")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, policy)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return err
	}
	return nil
}

// mapProviderError converts SDK errors into API errors.
func mapProviderError(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return apierror.NewAPIError(apierror.ErrUpstreamUnavailable, "payment provider unreachable", err.Error())
	}
	switch {
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 0:
		return apierror.NewAPIError(apierror.ErrUpstreamUnavailable, "payment provider is unavailable", stripeErr.Msg)
	case stripeErr.HTTPStatusCode == http.StatusNotFound:
		return apierror.NewAPIError(apierror.ErrNotFound, "checkout session not found", stripeErr.Msg)
	default:
		return apierror.NewAPIError(apierror.ErrInvalidInput, "payment provider rejected the request", stripeErr.Msg)
	}
}

func fromCheckoutSession(cs *stripe.CheckoutSession) *Session {
	s := &Session{
		ID:                cs.ID,
		URL:               cs.URL,
		Status:            string(cs.Status),
		PaymentStatus:     string(cs.PaymentStatus),
		AmountTotal:       cs.AmountTotal,
		Currency:          string(cs.Currency),
		ClientReferenceID: cs.ClientReferenceID,
		Metadata:          cs.Metadata,
		ExpiresAt:         cs.ExpiresAt,
	}
	if cs.PaymentIntent != nil {
		s.PaymentIntent = cs.PaymentIntent.ID
	}
	return s
}

func withSessionPlaceholder(successURL string) string {
	if successURL == "" || strings.Contains(successURL, sessionPlaceholder) {
		return successURL
	}
	sep := "?"
	if strings.Contains(successURL, "?") {
		sep = "&"
	}
	return successURL + sep + "session_id=" + sessionPlaceholder
}
