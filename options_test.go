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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/database/mocks"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/typesense/typesense-go/typesense/api"
)

func TestNewRegistrlyWithOptions(t *testing.T) {
	config.MockConfig(testConfig())
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	p := new(mockProvider)
	r, err := NewRegistrly(new(mocks.MockDataSource),
		WithRedis(client),
		WithProvider(p),
		WithInlineProcessing(),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)

	assert.Nil(t, r.queue)
	assert.Same(t, p, r.provider)
	assert.NotNil(t, r.cache)
	assert.Nil(t, r.search)
	assert.Equal(t, fixedNow, r.clock())
	assert.NoError(t, r.Close())
}

func TestSearchValidatesCollectionFirst(t *testing.T) {
	r := &Registrly{}

	_, err := r.Search(context.Background(), "ledgers", &api.SearchCollectionParams{})
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))

	_, err = r.Search(context.Background(), search.CollectionSubmissions, &api.SearchCollectionParams{})
	assert.Equal(t, errSearchDisabled, err)
}
