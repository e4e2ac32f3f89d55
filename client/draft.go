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
	"errors"
	"fmt"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/registrly/registrly"
	"github.com/registrly/registrly/model"
	"github.com/shopspring/decimal"
)

// Step is one page of the registration wizard.
type Step string

const (
	StepTrack     Step = "track"
	StepProfile   Step = "profile"
	StepAddresses Step = "addresses"
	StepServices  Step = "services"
	StepReview    Step = "review"
)

// Steps lists the wizard pages in order.
var Steps = []Step{StepTrack, StepProfile, StepAddresses, StepServices, StepReview}

var errUnknownService = errors.New("is not an available service")

// PreviewAmount is the total shown while the user edits the draft. It is
// never sent to the server; the submission response carries the real total.
type PreviewAmount struct {
	amount decimal.Decimal
}

func (p PreviewAmount) Decimal() decimal.Decimal {
	return p.amount
}

func (p PreviewAmount) String() string {
	return p.amount.StringFixed(2)
}

// Draft holds wizard state between steps. Abandoning a draft needs no
// cleanup: nothing is stored on the server until it is submitted.
type Draft struct {
	mu           sync.Mutex
	id           string
	track        model.Track
	profile      model.BusinessProfile
	addresses    model.Addresses
	services     []string
	submissionID string
}

func NewDraft() *Draft {
	return &Draft{id: model.GenerateUUIDWithSuffix(model.DraftPrefix)}
}

// ID is the local draft reference. It is distinct from the submission id.
func (d *Draft) ID() string {
	return d.id
}

func (d *Draft) SetTrack(track model.Track) error {
	if !track.IsValid() {
		return fmt.Errorf("unknown track %q", track)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.track = track
	return nil
}

func (d *Draft) SetProfile(profile model.BusinessProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profile = profile
}

// SetAddresses stores the addresses, copying the personal address into the
// business one when BusinessSameAsPersonal is set.
func (d *Draft) SetAddresses(addresses model.Addresses) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses = addresses.Resolve()
}

// ToggleService adds or removes an add-on and reports whether it is now selected.
func (d *Draft) ToggleService(id string) (bool, error) {
	if _, ok := model.ServiceFee(id); !ok {
		return false, fmt.Errorf("service %q %w", id, errUnknownService)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.services {
		if s == id {
			d.services = append(d.services[:i], d.services[i+1:]...)
			return false, nil
		}
	}
	d.services = append(d.services, id)
	return true, nil
}

// Services returns the selected add-ons in canonical order.
func (d *Draft) Services() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return model.NormalizeServices(d.services)
}

// Preview prices the current selection for display.
func (d *Draft) Preview() PreviewAmount {
	d.mu.Lock()
	defer d.mu.Unlock()
	total, _, _ := model.PriceBreakdown(d.track, d.services)
	return PreviewAmount{amount: total}
}

// StepComplete reports whether step can be left. Field rules are the ones the
// server applies on submission, so a draft that passes StepReview is accepted.
func (d *Draft) StepComplete(step Step) error {
	in := d.Input()

	if step == StepServices {
		return validateServices(in.AdditionalServices)
	}

	err := registrly.ValidateSubmissionInput(in)
	var errs validation.Errors
	if err != nil && !errors.As(err, &errs) {
		return err
	}

	switch step {
	case StepTrack:
		return errs["track"]
	case StepProfile:
		return errs["business_profile"]
	case StepAddresses:
		return errs["addresses"]
	case StepReview:
		if err != nil {
			return err
		}
		return validateServices(in.AdditionalServices)
	}
	return fmt.Errorf("unknown step %q", step)
}

func validateServices(ids []string) error {
	return validation.Validate(ids, validation.Each(validation.By(func(value interface{}) error {
		id, _ := value.(string)
		if _, ok := model.ServiceFee(id); !ok {
			return errUnknownService
		}
		return nil
	})))
}

// Input is the payload submitted for this draft.
func (d *Draft) Input() model.SubmissionInput {
	d.mu.Lock()
	defer d.mu.Unlock()
	return model.SubmissionInput{
		DraftID:            d.id,
		Track:              d.track,
		BusinessProfile:    d.profile,
		Addresses:          d.addresses,
		AdditionalServices: model.NormalizeServices(d.services),
	}
}

// SubmissionID is set once the draft has been submitted.
func (d *Draft) SubmissionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissionID
}

func (d *Draft) markSubmitted(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submissionID = id
}
