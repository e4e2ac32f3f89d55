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
package model

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/registrly/registrly/model"
)

type CreateSubmission struct {
	DraftID            string                 `json:"draft_id"`
	Track              model.Track            `json:"track"`
	BusinessProfile    model.BusinessProfile  `json:"business_profile"`
	Addresses          model.Addresses        `json:"addresses"`
	AdditionalServices []string               `json:"additional_services"`
	MetaData           map[string]interface{} `json:"meta_data"`
}

type UpdateStatus struct {
	Status  string `json:"status"`
	Note    string `json:"note"`
	AddNote bool   `json:"add_note"`
}

type CreateNote struct {
	Note string `json:"note"`
}

type QuoteRequest struct {
	Track              model.Track `json:"track"`
	AdditionalServices []string    `json:"additional_services"`
}

type CreateCheckoutSession struct {
	SubmissionID       string      `json:"submission_id"`
	Track              model.Track `json:"track"`
	AdditionalServices []string    `json:"additional_services"`
}

type CreateContactQuery struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type ReindexRequest struct {
	Wait bool `json:"wait"`
}

var errUnknownTrack = errors.New("must be DIY or ASSISTED")

func validTrack(value interface{}) error {
	track, _ := value.(model.Track)
	if track == "" || track.IsValid() {
		return nil
	}
	return errUnknownTrack
}

// ValidateCreateSubmission checks the request shape. Field-level rules for
// the business profile and addresses run in the service.
func (s *CreateSubmission) ValidateCreateSubmission() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Track, validation.Required, validation.By(validTrack)),
		validation.Field(&s.AdditionalServices, validation.Length(0, 20)),
	)
}

func (s *CreateSubmission) ToInput() model.SubmissionInput {
	return model.SubmissionInput{
		DraftID:            s.DraftID,
		Track:              s.Track,
		BusinessProfile:    s.BusinessProfile,
		Addresses:          s.Addresses,
		AdditionalServices: s.AdditionalServices,
		MetaData:           s.MetaData,
	}
}

func (u *UpdateStatus) ValidateUpdateStatus() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Status, validation.Required),
		validation.Field(&u.Note, validation.Length(0, 2000), validation.When(u.AddNote, validation.Required)),
	)
}

func (n *CreateNote) ValidateCreateNote() error {
	n.Note = strings.TrimSpace(n.Note)
	return validation.ValidateStruct(n,
		validation.Field(&n.Note, validation.Required, validation.Length(1, 2000)),
	)
}

func (q *QuoteRequest) ValidateQuoteRequest() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Track, validation.Required, validation.By(validTrack)),
	)
}

func (s *CreateCheckoutSession) ValidateCreateCheckoutSession() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.SubmissionID, validation.Required),
		validation.Field(&s.Track, validation.By(validTrack)),
	)
}
