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
	"math/rand"
	"testing"

	"github.com/registrly/registrly/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTotal_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		track    model.Track
		services []string
		want     string
	}{
		{"diy without add-ons", model.TrackDIY, nil, "99"},
		{"assisted with ein and agent", model.TrackAssisted, []string{"ein", "registered-agent"}, "448"},
		{"unknown add-on is free", model.TrackDIY, []string{"foo"}, "99"},
		{"every add-on", model.TrackDIY, model.KnownServices(), "623"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotal(tt.track, tt.services)
			assert.True(t, mustDecimal(tt.want).Equal(got.Decimal()), "got %s", got)
		})
	}
}

func TestComputeTotal_SumOverEverySubset(t *testing.T) {
	known := model.KnownServices()
	for _, track := range []model.Track{model.TrackDIY, model.TrackAssisted} {
		for mask := 0; mask < 1<<len(known); mask++ {
			var subset []string
			want := model.BaseFee(track)
			for i, id := range known {
				if mask&(1<<i) != 0 {
					subset = append(subset, id)
					fee, _ := model.ServiceFee(id)
					want = want.Add(fee)
				}
			}
			assert.True(t, want.Equal(ComputeTotal(track, subset).Decimal()), "%s %v", track, subset)
		}
	}
}

func TestComputeTotal_OrderAndDuplicatesDoNotMatter(t *testing.T) {
	ids := []string{"ein", "document-review", "business-license", "ein", "document-review"}
	want := ComputeTotal(model.TrackAssisted, ids)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), ids...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.True(t, want.Decimal().Equal(ComputeTotal(model.TrackAssisted, shuffled).Decimal()))
	}
	assert.True(t, want.Decimal().Equal(ComputeTotal(model.TrackAssisted, []string{"business-license", "document-review", "ein"}).Decimal()))
}

func TestAuthoritativeAmount_MinorUnits(t *testing.T) {
	assert.Equal(t, int64(44800), ComputeTotal(model.TrackAssisted, []string{"ein", "registered-agent"}).MinorUnits())
	assert.Equal(t, int64(1999), AuthoritativeAmount{amount: mustDecimal("19.99")}.MinorUnits())
	assert.Equal(t, "99.00", ComputeTotal(model.TrackDIY, nil).String())
}

func TestQuoteServices_FlagsUnknownWithSuggestion(t *testing.T) {
	quote, err := QuoteServices(model.TrackDIY, []string{"notary-public-filing", "eni", "ein", "registerd-agent"})
	require.NoError(t, err)

	assert.True(t, mustDecimal("149").Equal(quote.Total))
	assert.Equal(t, []string{"eni", "notary-public-filing", "registerd-agent"}, quote.Unrecognized)
	assert.Equal(t, "ein", quote.Suggestions["eni"])
	assert.Equal(t, "registered-agent", quote.Suggestions["registerd-agent"])
	assert.NotContains(t, quote.Suggestions, "notary-public-filing")
	require.Len(t, quote.Services, 1)
	assert.Equal(t, "ein", quote.Services[0].ID)
}

func TestQuoteServices_RejectsUnknownTrack(t *testing.T) {
	_, err := QuoteServices("PREMIUM", nil)
	assert.Error(t, err)
}
