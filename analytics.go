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
	"github.com/posthog/posthog-go"
	"github.com/registrly/registrly/config"
	"github.com/sirupsen/logrus"
)

const defaultPostHogURL = "https://us.i.posthog.com"

// Analytics captures product events. A nil *Analytics drops everything.
type Analytics struct {
	client posthog.Client
}

// NewAnalytics returns nil unless telemetry is enabled with a PostHog key.
func NewAnalytics(cfg config.TelemetryConfig) *Analytics {
	if !cfg.Enabled || cfg.PostHogKey == "" {
		return nil
	}
	endpoint := cfg.PostHogURL
	if endpoint == "" {
		endpoint = defaultPostHogURL
	}
	client, err := posthog.NewWithConfig(cfg.PostHogKey, posthog.Config{Endpoint: endpoint})
	if err != nil {
		logrus.WithError(err).Warn("analytics disabled")
		return nil
	}
	return &Analytics{client: client}
}

// Capture enqueues a product event for distinctID. It is safe to call on a nil
// Analytics, and failures are logged rather than returned.
//
// Parameters:
// - distinctID: The user the event belongs to.
// - event: The event name, e.g. "payment_completed".
// - properties: Extra properties attached to the event.
func (a *Analytics) Capture(distinctID, event string, properties map[string]interface{}) {
	if a == nil || a.client == nil {
		return
	}
	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}
	if err := a.client.Enqueue(posthog.Capture{DistinctId: distinctID, Event: event, Properties: props}); err != nil {
		logrus.WithError(err).WithField("event", event).Debug("analytics capture failed")
	}
}

// Close flushes pending events.
func (a *Analytics) Close() {
	if a == nil || a.client == nil {
		return
	}
	if err := a.client.Close(); err != nil {
		logrus.WithError(err).Debug("analytics close failed")
	}
}
