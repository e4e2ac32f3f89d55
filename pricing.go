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
	"github.com/registrly/registrly/model"
	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// maxSuggestionDistance bounds how far a typo may be from a known add-on id.
const maxSuggestionDistance = 3

// AuthoritativeAmount is a total computed on the server. Only values of this
// type are charged; client previews cannot be converted into one.
type AuthoritativeAmount struct {
	amount decimal.Decimal
}

// Decimal returns the amount in major units, e.g. 99.00.
func (a AuthoritativeAmount) Decimal() decimal.Decimal {
	return a.amount
}

// MinorUnits returns the amount in cents.
func (a AuthoritativeAmount) MinorUnits() int64 {
	return a.amount.Shift(2).Round(0).IntPart()
}

// String formats the amount with two decimal places.
func (a AuthoritativeAmount) String() string {
	return a.amount.StringFixed(2)
}

// ComputeTotal returns base(track) plus the fee of every recognised add-on.
// Duplicates and order in ids do not affect the result.
func ComputeTotal(track model.Track, ids []string) AuthoritativeAmount {
	total, _, _ := model.PriceBreakdown(track, ids)
	return AuthoritativeAmount{amount: total}
}

// recordedAmount treats a stored submission total as authoritative; it was
// computed by ComputeTotal when the submission was created.
func recordedAmount(sub *model.Submission) AuthoritativeAmount {
	return AuthoritativeAmount{amount: sub.TotalAmount}
}

// LineItem is one priced component of a quote.
type LineItem struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

// Quote is a priced preview of a selection. Its Total is for display only;
// checkout always charges the amount recorded on the submission.
type Quote struct {
	Track        model.Track       `json:"track"`
	BaseFee      decimal.Decimal   `json:"base_fee"`
	Services     []LineItem        `json:"services"`
	Unrecognized []string          `json:"unrecognized_services"`
	Suggestions  map[string]string `json:"suggestions,omitempty"`
	Total        decimal.Decimal   `json:"total"`
	Currency     string            `json:"currency,omitempty"`
}

// QuoteServices prices a selection and flags ids missing from the fee table,
// suggesting the nearest known id for each when one is close enough.
func QuoteServices(track model.Track, ids []string) (*Quote, error) {
	if !track.IsValid() {
		return nil, invalidInput("unknown track %q", track)
	}
	total, services, unrecognized := model.PriceBreakdown(track, ids)
	quote := &Quote{
		Track:        track,
		BaseFee:      model.BaseFee(track),
		Services:     make([]LineItem, 0, len(services)),
		Unrecognized: make([]string, 0, len(unrecognized)),
		Total:        total,
	}
	for _, id := range services {
		if fee, ok := model.ServiceFee(id); ok {
			quote.Services = append(quote.Services, LineItem{ID: id, Amount: fee})
		}
	}
	for _, id := range unrecognized {
		quote.Unrecognized = append(quote.Unrecognized, id)
		if s, ok := suggestService(id); ok {
			if quote.Suggestions == nil {
				quote.Suggestions = map[string]string{}
			}
			quote.Suggestions[id] = s
		}
	}
	return quote, nil
}

func suggestService(id string) (string, bool) {
	best, bestDistance := "", maxSuggestionDistance+1
	for _, candidate := range model.KnownServices() {
		d := levenshtein.DistanceForStrings([]rune(id), []rune(candidate), levenshtein.DefaultOptionsWithSub)
		if d < bestDistance {
			best, bestDistance = candidate, d
		}
	}
	return best, best != ""
}
