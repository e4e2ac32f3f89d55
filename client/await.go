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
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/model"
)

// ErrPaymentPending is returned when the poll budget runs out before the
// payment is confirmed. The webhook may still land later.
var ErrPaymentPending = errors.New("payment not confirmed yet")

// AwaitOptions bounds the payment poll. Zero values use the defaults.
type AwaitOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Budget          time.Duration
}

func (o AwaitOptions) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 8 * time.Second
	b.MaxElapsedTime = time.Minute
	if o.InitialInterval > 0 {
		b.InitialInterval = o.InitialInterval
	}
	if o.MaxInterval > 0 {
		b.MaxInterval = o.MaxInterval
	}
	if o.Budget > 0 {
		b.MaxElapsedTime = o.Budget
	}
	b.Reset()
	return b
}

// AwaitPayment polls the submission with exponential backoff until its
// payment status is paid, a non-retryable error occurs, ctx ends or the
// budget runs out. The last submission seen is returned in every case.
func (c *Client) AwaitPayment(ctx context.Context, session Session, submissionID string, opts AwaitOptions) (*model.Submission, error) {
	var last *model.Submission
	op := func() error {
		sub, err := c.GetSubmission(ctx, session, submissionID)
		if err != nil {
			if apierror.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		last = sub
		if sub.PaymentStatus == model.PaymentPaid {
			return nil
		}
		return ErrPaymentPending
	}

	if err := backoff.Retry(op, backoff.WithContext(opts.backOff(), ctx)); err != nil {
		return last, err
	}
	return last, nil
}
