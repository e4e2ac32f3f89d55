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
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/provider"
	"github.com/registrly/registrly/internal/search"
	"github.com/sirupsen/logrus"
)

// permanent stops asynq retrying errors that a retry cannot fix.
func permanent(err error) error {
	if err == nil || apierror.IsRetryable(err) {
		return err
	}
	if apiErr, ok := apierror.As(err); ok && apiErr.Code == apierror.ErrInternalServer {
		return err
	}
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}

// ProcessPaymentEvent reconciles a queued provider event.
func (r *Registrly) ProcessPaymentEvent(ctx context.Context, task *asynq.Task) error {
	var event provider.Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return fmt.Errorf("decode payment event: %v: %w", err, asynq.SkipRetry)
	}
	logger := logrus.WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type})
	if err := r.ReconcileEvent(ctx, &event); err != nil {
		logger.WithError(err).Error("payment event reconciliation failed")
		return permanent(err)
	}
	logger.Info("payment event processed")
	return nil
}

// ProcessSessionExpiry re-queries a session once its checkout window has passed.
func (r *Registrly) ProcessSessionExpiry(ctx context.Context, task *asynq.Task) error {
	var sessionID string
	if err := json.Unmarshal(task.Payload(), &sessionID); err != nil {
		return fmt.Errorf("decode session expiry: %v: %w", err, asynq.SkipRetry)
	}
	status, err := r.ReconcileSessionByID(ctx, sessionID, SourceExpiry)
	if err != nil {
		return permanent(err)
	}
	logrus.WithFields(logrus.Fields{"session_id": sessionID, "payment_status": status}).Info("session expiry checked")
	return nil
}

// ProcessIndex upserts a queued document into search.
func (r *Registrly) ProcessIndex(ctx context.Context, task *asynq.Task) error {
	if r.search == nil {
		return nil
	}
	var payload IndexPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode index payload: %v: %w", err, asynq.SkipRetry)
	}
	doc, err := search.DecodeDocument(payload.Payload)
	if err != nil {
		return fmt.Errorf("decode index document: %v: %w", err, asynq.SkipRetry)
	}
	return r.search.HandleNotification(ctx, payload.Collection, doc)
}

// RegisterHandlers routes every task type to its handler.
func (r *Registrly) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskPaymentEvent, r.ProcessPaymentEvent)
	mux.HandleFunc(TaskSessionExpiry, r.ProcessSessionExpiry)
	mux.HandleFunc(TaskIndex, r.ProcessIndex)
	mux.HandleFunc(TaskWebhook, ProcessWebhook)
}
