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
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Event types handled by reconciliation.
const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutAsyncPaymentPassed = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed = "checkout.session.async_payment_failed"
	EventCheckoutExpired            = "checkout.session.expired"
)

const DefaultTolerance = 5 * time.Minute

var (
	ErrInvalidHeader = webhook.ErrInvalidHeader
	ErrNoSignature   = webhook.ErrNoValidSignature
	ErrNotSigned     = webhook.ErrNotSigned
	ErrTooOld        = webhook.ErrTooOld
)

// Event is a verified provider event. It is queued as JSON, so the session
// is kept in its decoded form.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object Session `json:"object"`
	} `json:"data"`
}

// Handled reports whether the event type affects payment state.
func (e *Event) Handled() bool {
	switch e.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentPassed, EventCheckoutAsyncPaymentFailed, EventCheckoutExpired:
		return true
	}
	return false
}

// SignatureHeader signs payload at t with secret, producing the header the
// provider would send. Used to replay deliveries locally.
func SignatureHeader(t time.Time, payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: t,
	})
	return signed.Header
}

// ConstructEvent authenticates a webhook delivery and decodes it. Deliveries
// older than tolerance are rejected. The account's API version is not
// checked; only session fields are read.
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration) (*Event, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	raw, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, errors.New("webhook event is missing id or type")
	}

	event := &Event{ID: raw.ID, Type: string(raw.Type), Created: raw.Created}
	if !event.Handled() || raw.Data == nil {
		return event, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw.Data.Raw, &cs); err != nil {
		return nil, errors.Wrap(err, "decode checkout session")
	}
	event.Data.Object = *fromCheckoutSession(&cs)
	return event, nil
}
