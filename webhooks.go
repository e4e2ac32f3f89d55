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
	"time"

	"github.com/hibiken/asynq"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/internal/request"
	"github.com/sirupsen/logrus"
)

// Outbound webhook events.
const (
	EventSubmissionCreated       = "submission.created"
	EventSubmissionStatusChanged = "submission.status_changed"
	EventSubmissionNoteAdded     = "submission.note_added"
	EventPaymentCompleted        = "payment.completed"
	EventPaymentPending          = "payment.pending"
	EventPaymentFailed           = "payment.failed"
	EventPaymentExpired          = "payment.expired"
	EventContactCreated          = "contact.created"
	EventContactStatusChanged    = "contact.status_changed"
)

// NewWebhook is the body posted to the configured notification URL.
type NewWebhook struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// SendWebhook queues an outbound notification. Failures are logged and never
// fail the operation that produced the event.
func (r *Registrly) SendWebhook(ctx context.Context, event string, payload interface{}) {
	if r.queue == nil {
		return
	}
	hook := NewWebhook{Event: event, Payload: payload, Timestamp: r.clock()}
	if err := r.queue.EnqueueWebhook(ctx, hook); err != nil {
		logrus.WithError(err).WithField("event", event).Error("failed to enqueue webhook")
	}
}

// ProcessWebhook delivers a queued notification.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode webhook payload: %v: %w", err, asynq.SkipRetry)
	}

	logrus.WithField("event", payload.Event).Info("delivering webhook")
	if _, err := request.PostJSON(ctx, conf.Notification.Webhook.Url, conf.Notification.Webhook.Headers, payload, nil); err != nil {
		return fmt.Errorf("deliver webhook %s: %w", payload.Event, err)
	}
	return nil
}
