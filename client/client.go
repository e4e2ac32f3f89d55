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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/registrly/registrly"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/request"
	"github.com/registrly/registrly/model"
)

const defaultTimeout = 15 * time.Second

// Session is the caller's authentication for one request. Every call takes
// one explicitly; the client holds no ambient credentials.
type Session struct {
	Token string
}

// Client calls the Registrly HTTP API. Failed calls return apierror.APIError
// values, so callers can branch with apierror.HasCode and apierror.IsRetryable.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote prices a selection on the server. No session is needed.
func (c *Client) Quote(ctx context.Context, track model.Track, services []string) (*registrly.Quote, error) {
	var quote registrly.Quote
	payload := map[string]interface{}{"track": track, "additional_services": services}
	if err := c.do(ctx, Session{}, http.MethodPost, "/pricing/quote", payload, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (c *Client) CreateSubmission(ctx context.Context, session Session, in model.SubmissionInput) (*model.Submission, error) {
	var sub model.Submission
	if err := c.do(ctx, session, http.MethodPost, "/submissions", in, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// SubmitDraft creates the submission for d once. Later calls return the
// stored submission instead of creating a duplicate.
func (c *Client) SubmitDraft(ctx context.Context, session Session, d *Draft) (*model.Submission, error) {
	if id := d.SubmissionID(); id != "" {
		return c.GetSubmission(ctx, session, id)
	}
	if err := d.StepComplete(StepReview); err != nil {
		return nil, apierror.APIError{Code: apierror.ErrInvalidInput, Message: "draft is incomplete", Details: err}
	}
	sub, err := c.CreateSubmission(ctx, session, d.Input())
	if err != nil {
		return nil, err
	}
	d.markSubmitted(sub.SubmissionID)
	return sub, nil
}

func (c *Client) GetSubmission(ctx context.Context, session Session, id string) (*model.Submission, error) {
	var sub model.Submission
	if err := c.do(ctx, session, http.MethodGet, "/submissions/"+url.PathEscape(id), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateCheckoutSession opens a payment for an existing submission. Retrying
// after a failed payment reuses the same submission id.
func (c *Client) CreateCheckoutSession(ctx context.Context, session Session, submissionID string) (*registrly.CheckoutSession, error) {
	var out registrly.CheckoutSession
	payload := map[string]string{"submission_id": submissionID}
	if err := c.do(ctx, session, http.MethodPost, "/payments/create-checkout-session", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifySession(ctx context.Context, session Session, sessionID string) (*registrly.VerifyResult, error) {
	var out registrly.VerifyResult
	if err := c.do(ctx, session, http.MethodGet, "/payments/verify-session/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, session Session, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := request.ToJsonReq(payload)
		if err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apierror.APIError{Code: apierror.ErrUpstreamUnavailable, Message: "registrly api unreachable", Details: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierror.APIError{Code: apierror.ErrUpstreamUnavailable, Message: "failed to read response", Details: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

type errorBody struct {
	Code    apierror.ErrorCode `json:"code"`
	Error   string             `json:"error"`
	Details interface{}        `json:"details"`
}

// decodeError maps an error response onto an APIError. Responses without a
// code, such as those from the rate limiter, are classified by status.
func decodeError(status int, raw []byte) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)
	if body.Error == "" {
		body.Error = http.StatusText(status)
	}
	if body.Code == "" {
		body.Code = codeForStatus(status)
	}
	return apierror.APIError{Code: body.Code, Message: body.Error, Details: body.Details}
}

func codeForStatus(status int) apierror.ErrorCode {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apierror.ErrInvalidInput
	case http.StatusUnauthorized:
		return apierror.ErrUnauthorized
	case http.StatusForbidden:
		return apierror.ErrForbidden
	case http.StatusNotFound:
		return apierror.ErrNotFound
	case http.StatusConflict:
		return apierror.ErrConflict
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apierror.ErrUpstreamUnavailable
	}
	return apierror.ErrInternalServer
}
