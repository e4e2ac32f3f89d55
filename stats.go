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

	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/model"
)

// GetStats returns counts per status and the revenue from completed payments.
func (r *Registrly) GetStats(ctx context.Context, actor model.Actor) (*model.Stats, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	stats, err := r.datasource.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.Currency == "" {
		if cfg, err := config.Fetch(); err == nil {
			stats.Currency = cfg.Payments.Currency
		}
	}
	return stats, nil
}
