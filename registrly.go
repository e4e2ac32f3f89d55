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
	"embed"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/database"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/cache"
	"github.com/registrly/registrly/internal/provider"
	redis_db "github.com/registrly/registrly/internal/redis-db"
	"github.com/registrly/registrly/internal/search"
	"github.com/registrly/registrly/model"
	"github.com/typesense/typesense-go/typesense/api"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("registrly")

//go:embed sql/*.sql
var SQLFiles embed.FS

// Registrly is the service layer shared by the API and the workers.
type Registrly struct {
	datasource database.IDataSource
	provider   provider.Provider
	queue      *Queue
	inline     bool
	redis      redis.UniversalClient
	cache      cache.Cache
	search     *search.TypesenseClient
	analytics  *Analytics
	now        func() time.Time
}

// Option replaces a dependency NewRegistrly would otherwise build from config.
type Option func(*Registrly)

// WithProvider replaces the configured payment provider client.
func WithProvider(p provider.Provider) Option {
	return func(r *Registrly) { r.provider = p }
}

// WithRedis shares an existing client for the lock and the submission cache.
func WithRedis(client redis.UniversalClient) Option {
	return func(r *Registrly) {
		r.redis = client
		r.cache = cache.NewRedisCache(client)
	}
}

// WithInlineProcessing reconciles provider events on the request path and
// skips background indexing and outbound webhooks.
func WithInlineProcessing() Option {
	return func(r *Registrly) { r.inline = true }
}

// WithClock replaces time.Now for timeline entries, payment timestamps and
// sweeper cutoffs.
func WithClock(now func() time.Time) Option {
	return func(r *Registrly) { r.now = now }
}

// NewRegistrly wires the service from the loaded configuration.
func NewRegistrly(db database.IDataSource, opts ...Option) (*Registrly, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	r := &Registrly{datasource: db, now: model.Now}
	for _, opt := range opts {
		opt(r)
	}

	if r.redis == nil {
		redisClient, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
		if err != nil {
			return nil, err
		}
		r.redis = redisClient.Client()
		r.cache = cache.NewRedisCache(r.redis)
	}
	if !r.inline {
		r.queue, err = NewQueue(cfg)
		if err != nil {
			return nil, err
		}
	}
	if r.provider == nil {
		r.provider = provider.NewClient(cfg.Payments)
	}
	r.analytics = NewAnalytics(cfg.Telemetry)
	if cfg.TypeSense.Dns != "" {
		r.search = search.NewTypesenseClient(cfg.TypeSense.Key, []string{cfg.TypeSense.Dns})
	}
	return r, nil
}

// Close releases the queue client and flushes analytics.
func (r *Registrly) Close() error {
	r.analytics.Close()
	if r.queue != nil {
		return r.queue.Close()
	}
	return nil
}

// Search runs a query against one of the admin search collections.
func (r *Registrly) Search(ctx context.Context, collection string, query *api.SearchCollectionParams) (*api.SearchResult, error) {
	if !search.IsCollection(collection) {
		return nil, invalidInput("unknown collection %q", collection)
	}
	if r.search == nil {
		return nil, errSearchDisabled
	}
	resp, err := r.search.Search(ctx, collection, query)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), err)
	}
	return resp, nil
}

// Reindexer returns a service that rebuilds every search collection.
func (r *Registrly) Reindexer() (*search.ReindexService, error) {
	if r.search == nil {
		return nil, errSearchDisabled
	}
	return search.NewReindexService(r.search, r.datasource), nil
}

func (r *Registrly) clock() time.Time {
	if r.now == nil {
		return model.Now()
	}
	return r.now()
}
