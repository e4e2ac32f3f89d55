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
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/registrly/registrly/config"
	redis_db "github.com/registrly/registrly/internal/redis-db"
	"github.com/registrly/registrly/internal/provider"
	"github.com/sirupsen/logrus"
)

// Task type names. Each is routed to the queue of the same concern in config.Queue.
const (
	TaskPaymentEvent  = "payments:event"
	TaskSessionExpiry = "payments:session_expiry"
	TaskWebhook       = "notifications:webhook"
	TaskIndex         = "search:index"
)

// expiryGrace gives the provider time to emit its own expired event first.
const expiryGrace = time.Minute

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue enqueues background work on Redis.
type Queue struct {
	client enqueuer
	closer func() error
}

// IndexPayload is the body of a search indexing task.
type IndexPayload struct {
	Collection string          `json:"collection"`
	Payload    json.RawMessage `json:"payload"`
}

// RedisClientOpt builds asynq connection options from the Redis configuration.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Username:  redisOption.Username,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue creates a queue backed by an asynq client on the configured Redis.
//
// Parameters:
// - conf: The loaded configuration; only the Redis section is read.
//
// Returns:
// - *Queue: A queue ready to enqueue tasks.
// - error: An error if the Redis URL cannot be parsed.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	client := asynq.NewClient(opt)
	return &Queue{client: client, closer: client.Close}, nil
}

// Close releases the underlying asynq client. It is a no-op for queues built
// without one.
func (q *Queue) Close() error {
	if q.closer == nil {
		return nil
	}
	return q.closer()
}

func (q *Queue) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(taskType, body), opts...)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"task": taskType, "id": info.ID, "queue": info.Queue}).Debug("enqueued task")
	return nil
}

// EnqueuePaymentEvent queues a verified provider event. The event id is the
// task id, so a redelivered event is accepted and dropped.
func (q *Queue) EnqueuePaymentEvent(ctx context.Context, event *provider.Event) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	err = q.enqueue(ctx, TaskPaymentEvent, event,
		asynq.TaskID(event.ID),
		asynq.Queue(cfg.Queue.PaymentEventQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		logrus.WithField("event_id", event.ID).Info("duplicate payment event delivery ignored")
		return nil
	}
	return err
}

// EnqueueSessionExpiry schedules a provider re-query shortly after the session expires.
func (q *Queue) EnqueueSessionExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	err = q.enqueue(ctx, TaskSessionExpiry, sessionID,
		asynq.TaskID("expiry:"+sessionID),
		asynq.Queue(cfg.Queue.ExpiryQueue),
		asynq.ProcessIn(time.Until(expiresAt)+expiryGrace),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueWebhook queues an outbound notification. It is a no-op without a webhook URL.
func (q *Queue) EnqueueWebhook(ctx context.Context, hook NewWebhook) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	if cfg.Notification.Webhook.Url == "" {
		return nil
	}
	return q.enqueue(ctx, TaskWebhook, hook,
		asynq.Queue(cfg.Queue.WebhookQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	)
}

// EnqueueIndex queues a search document upsert. It is a no-op without Typesense.
func (q *Queue) EnqueueIndex(ctx context.Context, collection string, document map[string]interface{}) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	if cfg.TypeSense.Dns == "" {
		return nil
	}
	raw, err := json.Marshal(document)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, TaskIndex, IndexPayload{Collection: collection, Payload: raw},
		asynq.Queue(cfg.Queue.IndexQueue),
	)
}
