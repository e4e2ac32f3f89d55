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

package search

import "github.com/typesense/typesense-go/typesense/api"

func getSubmissionSchema() *api.CollectionSchema {
	facet := true
	optional := true
	sortBy := "created_at"
	return &api.CollectionSchema{
		Name: CollectionSubmissions,
		Fields: []api.Field{
			{Name: "submission_id", Type: "string"},
			{Name: "user_id", Type: "string", Facet: &facet},
			{Name: "track", Type: "string", Facet: &facet},
			{Name: "status", Type: "string", Facet: &facet},
			{Name: "payment_status", Type: "string", Facet: &facet},
			{Name: "business_name", Type: "string"},
			{Name: "entity_type", Type: "string", Facet: &facet},
			{Name: "industry", Type: "string", Facet: &facet, Optional: &optional},
			{Name: "contact_email", Type: "string"},
			{Name: "additional_services", Type: "string[]", Facet: &facet},
			{Name: "total_amount", Type: "float"},
			{Name: "currency", Type: "string", Facet: &facet},
			{Name: "created_at", Type: "int64"},
			{Name: "last_updated", Type: "int64"},
		},
		DefaultSortingField: &sortBy,
	}
}

func getTransactionSchema() *api.CollectionSchema {
	facet := true
	optional := true
	sortBy := "created_at"
	return &api.CollectionSchema{
		Name: CollectionTransactions,
		Fields: []api.Field{
			{Name: "transaction_id", Type: "string"},
			{Name: "submission_id", Type: "string", Facet: &facet},
			{Name: "provider_session_id", Type: "string"},
			{Name: "provider_payment_id", Type: "string", Optional: &optional},
			{Name: "amount", Type: "float"},
			{Name: "currency", Type: "string", Facet: &facet},
			{Name: "status", Type: "string", Facet: &facet},
			{Name: "created_at", Type: "int64"},
			{Name: "paid_at", Type: "int64", Optional: &optional},
			{Name: "expires_at", Type: "int64"},
		},
		DefaultSortingField: &sortBy,
	}
}

func getContactQuerySchema() *api.CollectionSchema {
	facet := true
	sortBy := "created_at"
	return &api.CollectionSchema{
		Name: CollectionContactQueries,
		Fields: []api.Field{
			{Name: "query_id", Type: "string"},
			{Name: "name", Type: "string"},
			{Name: "email", Type: "string"},
			{Name: "subject", Type: "string"},
			{Name: "message", Type: "string"},
			{Name: "status", Type: "string", Facet: &facet},
			{Name: "created_at", Type: "int64"},
			{Name: "last_updated", Type: "int64"},
		},
		DefaultSortingField: &sortBy,
	}
}
