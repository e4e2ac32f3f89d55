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

package database

import (
	"context"

	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/model"
	"github.com/shopspring/decimal"
)

func (d Datasource) countBy(ctx context.Context, query string, visit func(key string, n int64)) error {
	rows, err := d.Conn.QueryContext(ctx, query)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan stats", err)
		}
		visit(key, n)
	}
	return rows.Err()
}

func (d Datasource) GetStats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{
		SubmissionsByStatus:  map[model.SubmissionStatus]int64{},
		SubmissionsByPayment: map[model.PaymentStatus]int64{},
		ContactsByStatus:     map[model.ContactStatus]int64{},
	}

	err := d.countBy(ctx, `SELECT status, COUNT(*) FROM registrly.submissions GROUP BY status`, func(k string, n int64) {
		stats.SubmissionsByStatus[model.SubmissionStatus(k)] = n
		stats.TotalSubmissions += n
	})
	if err != nil {
		return nil, err
	}

	err = d.countBy(ctx, `SELECT payment_status, COUNT(*) FROM registrly.submissions GROUP BY payment_status`, func(k string, n int64) {
		stats.SubmissionsByPayment[model.PaymentStatus(k)] = n
	})
	if err != nil {
		return nil, err
	}

	err = d.countBy(ctx, `SELECT status, COUNT(*) FROM registrly.contact_queries GROUP BY status`, func(k string, n int64) {
		stats.ContactsByStatus[model.ContactStatus(k)] = n
	})
	if err != nil {
		return nil, err
	}

	var revenue decimal.Decimal
	err = d.Conn.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM registrly.transactions WHERE status = 'completed'`).Scan(&revenue)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute revenue", err)
	}
	stats.Revenue = revenue
	return stats, nil
}
