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

package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/internal/request"
	"github.com/sirupsen/logrus"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func buildSlackMessage(title string, fields map[string]string, at time.Time) slackMessage {
	msg := slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: title, Emoji: true}},
	}}
	section := slackBlock{Type: "section"}
	for k, v := range fields {
		section.Fields = append(section.Fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", k, v)})
	}
	section.Fields = append(section.Fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%s", at.Format(time.RFC822))})
	msg.Blocks = append(msg.Blocks, section)
	return msg
}

// SlackNotification posts an alert to the configured Slack webhook. It is a no-op when none is set.
func SlackNotification(ctx context.Context, title string, fields map[string]string) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	url := conf.Notification.Slack.WebhookUrl
	if url == "" {
		return nil
	}
	_, err = request.PostJSON(ctx, url, nil, buildSlackMessage(title, fields, time.Now()), nil)
	return err
}

// NotifyError logs systemError and forwards it to Slack in the background.
func NotifyError(systemError error) {
	logrus.Error(systemError)
	go func(systemError error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := SlackNotification(ctx, "Error From Registrly", map[string]string{"Error": systemError.Error()})
		if err != nil {
			logrus.WithError(err).Warn("slack notification failed")
		}
	}(systemError)
}

// AlertPaymentMismatch raises an operator alert when a provider-confirmed amount differs from the recorded charge.
func AlertPaymentMismatch(ctx context.Context, sessionID, submissionID, expected, received string) error {
	logrus.WithFields(logrus.Fields{
		"session_id":    sessionID,
		"submission_id": submissionID,
		"expected":      expected,
		"received":      received,
	}).Error("payment amount mismatch")

	return SlackNotification(ctx, "Payment amount mismatch", map[string]string{
		"Session":    sessionID,
		"Submission": submissionID,
		"Expected":   expected,
		"Received":   received,
	})
}
