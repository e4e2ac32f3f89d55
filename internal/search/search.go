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

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/registrly/registrly/model"
	"github.com/sirupsen/logrus"
	"github.com/typesense/typesense-go/typesense"
	"github.com/typesense/typesense-go/typesense/api"
)

const (
	CollectionSubmissions    = "submissions"
	CollectionTransactions   = "transactions"
	CollectionContactQueries = "contact_queries"
)

// CollectionConfig ties a Typesense schema to the document field holding its id
// and the fields that must be stored as unix seconds.
type CollectionConfig struct {
	Schema     *api.CollectionSchema
	IDField    string
	TimeFields []string
}

var collectionConfigs = map[string]CollectionConfig{
	CollectionSubmissions: {
		Schema:     getSubmissionSchema(),
		IDField:    "submission_id",
		TimeFields: []string{"created_at", "last_updated"},
	},
	CollectionTransactions: {
		Schema:     getTransactionSchema(),
		IDField:    "transaction_id",
		TimeFields: []string{"created_at", "paid_at", "expires_at"},
	},
	CollectionContactQueries: {
		Schema:     getContactQuerySchema(),
		IDField:    "query_id",
		TimeFields: []string{"created_at", "last_updated"},
	},
}

// IsCollection reports whether name is an indexed collection.
func IsCollection(name string) bool {
	_, ok := collectionConfigs[name]
	return ok
}

type TypesenseClient struct {
	Client *typesense.Client
}

func NewTypesenseClient(apiKey string, hosts []string) *TypesenseClient {
	client := typesense.NewClient(
		typesense.WithServer(hosts[0]),
		typesense.WithAPIKey(apiKey),
		typesense.WithConnectionTimeout(5*time.Second),
		typesense.WithCircuitBreakerMaxRequests(50),
		typesense.WithCircuitBreakerInterval(2*time.Minute),
		typesense.WithCircuitBreakerTimeout(1*time.Minute),
	)
	return &TypesenseClient{Client: client}
}

func (t *TypesenseClient) EnsureCollectionsExist(ctx context.Context) error {
	for name, config := range collectionConfigs {
		if _, err := t.CreateCollection(ctx, config.Schema); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

func (t *TypesenseClient) CreateCollection(ctx context.Context, schema *api.CollectionSchema) (*api.CollectionResponse, error) {
	resp, err := t.Client.Collections().Create(ctx, schema)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil, nil
		}
		return nil, err
	}
	return resp, nil
}

func (t *TypesenseClient) Search(ctx context.Context, collection string, params *api.SearchCollectionParams) (*api.SearchResult, error) {
	if !IsCollection(collection) {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}
	return t.Client.Collection(collection).Documents().Search(ctx, params)
}

// HandleNotification normalises a document and upserts it into collection.
func (t *TypesenseClient) HandleNotification(ctx context.Context, collection string, data map[string]interface{}) error {
	config, ok := collectionConfigs[collection]
	if !ok {
		return fmt.Errorf("unknown collection: %s", collection)
	}

	ensureSchemaFields(config, data)
	normalizeTimeFields(config, data)

	id, _ := data[config.IDField].(string)
	if id == "" {
		return fmt.Errorf("document for %s has no %s", collection, config.IDField)
	}
	data["id"] = id

	if _, err := t.Client.Collection(collection).Documents().Upsert(ctx, data); err != nil {
		return fmt.Errorf("failed to upsert document in Typesense: %w", err)
	}
	logrus.WithFields(logrus.Fields{"collection": collection, "id": id}).Debug("indexed document")
	return nil
}

// MigrateTypeSenseSchema adds fields present in the local schema but missing from the live collection.
func (t *TypesenseClient) MigrateTypeSenseSchema(ctx context.Context, collectionName string) error {
	config, ok := collectionConfigs[collectionName]
	if !ok {
		return fmt.Errorf("unknown collection: %s", collectionName)
	}

	collection := t.Client.Collection(collectionName)
	current, err := collection.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve current schema: %w", err)
	}

	for _, field := range missingFields(current.Fields, config.Schema.Fields) {
		if _, err := collection.Update(ctx, &api.CollectionUpdateSchema{Fields: []api.Field{field}}); err != nil {
			return fmt.Errorf("failed to add field %s: %w", field.Name, err)
		}
		logrus.Infof("Added new field %s to collection %s", field.Name, collectionName)
	}
	return nil
}

func missingFields(current, latest []api.Field) []api.Field {
	have := make(map[string]bool, len(current))
	for _, f := range current {
		have[f.Name] = true
	}
	var out []api.Field
	for _, f := range latest {
		if !have[f.Name] {
			out = append(out, f)
		}
	}
	return out
}

func ensureSchemaFields(config CollectionConfig, data map[string]interface{}) {
	for _, field := range config.Schema.Fields {
		optional := field.Optional != nil && *field.Optional
		value, present := data[field.Name]
		switch {
		case !present && !optional:
			data[field.Name] = defaultValue(field.Type)
		case present && optional && (value == nil || value == ""):
			delete(data, field.Name)
		}
	}
}

func normalizeTimeFields(config CollectionConfig, data map[string]interface{}) {
	for _, field := range config.TimeFields {
		switch v := data[field].(type) {
		case time.Time:
			data[field] = v.Unix()
		case *time.Time:
			if v == nil {
				delete(data, field)
			} else {
				data[field] = v.Unix()
			}
		case string:
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				data[field] = ts.Unix()
			} else {
				delete(data, field)
			}
		case float64:
			data[field] = int64(v)
		}
	}
}

func defaultValue(fieldType string) interface{} {
	switch fieldType {
	case "string":
		return ""
	case "int32", "int64":
		return int64(0)
	case "float":
		return float64(0)
	case "bool":
		return false
	case "string[]":
		return []string{}
	default:
		return nil
	}
}

// SubmissionDocument flattens a submission into its search document.
func SubmissionDocument(sub *model.Submission) map[string]interface{} {
	amount, _ := sub.TotalAmount.Float64()
	return map[string]interface{}{
		"submission_id":       sub.SubmissionID,
		"user_id":             sub.UserID,
		"track":               string(sub.Track),
		"status":              string(sub.Status),
		"payment_status":      string(sub.PaymentStatus),
		"business_name":       sub.BusinessProfile.Name,
		"entity_type":         sub.BusinessProfile.EntityType,
		"industry":            sub.BusinessProfile.Industry,
		"contact_email":       sub.BusinessProfile.ContactEmail,
		"additional_services": sub.AdditionalServices,
		"total_amount":        amount,
		"currency":            sub.Currency,
		"created_at":          sub.CreatedAt,
		"last_updated":        sub.LastUpdated,
	}
}

func TransactionDocument(txn *model.Transaction) map[string]interface{} {
	amount, _ := txn.Amount.Float64()
	doc := map[string]interface{}{
		"transaction_id":      txn.TransactionID,
		"submission_id":       txn.SubmissionID,
		"provider_session_id": txn.ProviderSessionID,
		"provider_payment_id": txn.ProviderPaymentID,
		"amount":              amount,
		"currency":            txn.Currency,
		"status":              string(txn.Status),
		"created_at":          txn.CreatedAt,
		"expires_at":          txn.ExpiresAt,
	}
	if txn.PaidAt != nil {
		doc["paid_at"] = *txn.PaidAt
	}
	return doc
}

func ContactQueryDocument(q *model.ContactQuery) map[string]interface{} {
	return map[string]interface{}{
		"query_id":     q.QueryID,
		"name":         q.Name,
		"email":        q.Email,
		"subject":      q.Subject,
		"message":      q.Message,
		"status":       string(q.Status),
		"created_at":   q.CreatedAt,
		"last_updated": q.LastUpdated,
	}
}

// DecodeDocument turns a queued JSON payload back into a document map.
func DecodeDocument(raw json.RawMessage) (map[string]interface{}, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
