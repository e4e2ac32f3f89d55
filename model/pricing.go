package model

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var baseFees = map[Track]decimal.Decimal{
	TrackDIY:      decimal.NewFromInt(99),
	TrackAssisted: decimal.NewFromInt(299),
}

var serviceFees = map[string]decimal.Decimal{
	"ein":                  decimal.NewFromInt(50),
	"registered-agent":     decimal.NewFromInt(99),
	"operating-agreement":  decimal.NewFromInt(150),
	"business-license":     decimal.NewFromInt(75),
	"expedited-processing": decimal.NewFromInt(100),
	"document-review":      decimal.NewFromInt(50),
}

// BaseFee returns the registration fee for a track. Unknown tracks cost zero.
func BaseFee(track Track) decimal.Decimal {
	if fee, ok := baseFees[track]; ok {
		return fee
	}
	return decimal.Zero
}

// ServiceFee returns the add-on fee and whether the id is known.
func ServiceFee(id string) (decimal.Decimal, bool) {
	fee, ok := serviceFees[id]
	return fee, ok
}

// KnownServices returns the add-on ids in sorted order.
func KnownServices() []string {
	ids := make([]string, 0, len(serviceFees))
	for id := range serviceFees {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NormalizeServices trims, drops empties, deduplicates and sorts add-on ids.
func NormalizeServices(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PriceBreakdown sums the base fee and the known add-on fees of the normalised set.
// Ids missing from the fee table are returned as unrecognized and contribute nothing.
func PriceBreakdown(track Track, ids []string) (total decimal.Decimal, services, unrecognized []string) {
	services = NormalizeServices(ids)
	total = BaseFee(track)
	for _, id := range services {
		fee, ok := ServiceFee(id)
		if !ok {
			unrecognized = append(unrecognized, id)
			continue
		}
		total = total.Add(fee)
	}
	return total, services, unrecognized
}
