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

package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{
		ProjectName: "",
		DataSource:  DataSourceConfig{Dns: ""},
		Redis:       RedisConfig{Dns: "localhost:6379"},
	}

	err := cnf.validateAndAddDefaults()
	require.Error(t, err)
	assert.Equal(t, "Registrly Server", cnf.ProjectName)

	cnf.DataSource.Dns = "postgres://localhost/registrly"
	require.NoError(t, cnf.validateAndAddDefaults())

	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, "usd", cnf.Payments.Currency)
	assert.Equal(t, time.Hour, cnf.Payments.SessionTTL)
	assert.Equal(t, 5*time.Minute, cnf.Payments.SignatureMaxSkew)
	assert.Equal(t, "payment_events", cnf.Queue.PaymentEventQueue)
	assert.Equal(t, "session_expiry", cnf.Queue.ExpiryQueue)
	assert.Equal(t, "https://api.stripe.com", cnf.Payments.ProviderBaseURL)
	assert.False(t, cnf.Lifecycle.EnforceTransitions)
	assert.False(t, cnf.Pricing.RejectUnknownServices)
	assert.Nil(t, cnf.RateLimit.RequestsPerSecond)
	require.NotNil(t, cnf.RateLimit.CleanupIntervalSec)
}

func TestValidateAndAddDefaults_NormalisesCurrencyAndURL(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost/registrly"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Payments: PaymentConfig{
			Currency:        "EUR",
			ProviderBaseURL: " http://localhost:12111/ ",
		},
	}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, "eur", cnf.Payments.Currency)
	assert.Equal(t, "http://localhost:12111", cnf.Payments.ProviderBaseURL)
}

func TestValidateAndAddDefaults_SecureRequiresSecret(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost/registrly"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Server:     ServerConfig{Secure: true},
	}
	assert.Error(t, cnf.validateAndAddDefaults())
}

func TestValidateAndAddDefaults_RateLimitBurst(t *testing.T) {
	rps := 10.0
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost/registrly"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		RateLimit:  RateLimitConfig{RequestsPerSecond: &rps},
	}
	require.NoError(t, cnf.validateAndAddDefaults())
	require.NotNil(t, cnf.RateLimit.Burst)
	assert.Equal(t, 20, *cnf.RateLimit.Burst)
}

func TestLoadConfigFromFileWithEnvOverride(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "registrly.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	sample := Configuration{
		ProjectName: "File Project",
		DataSource:  DataSourceConfig{Dns: "temp-dns"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
	}
	require.NoError(t, json.NewEncoder(tmpFile).Encode(sample))
	tmpFile.Close()

	t.Setenv("REGISTRLY_PROJECT_NAME", "Env Project")
	t.Setenv("REGISTRLY_LIFECYCLE_ENFORCE_TRANSITIONS", "true")

	require.NoError(t, loadConfigFromFile(tmpFile.Name()))

	loaded, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "Env Project", loaded.ProjectName)
	assert.Equal(t, "temp-dns", loaded.DataSource.Dns)
	assert.True(t, loaded.Lifecycle.EnforceTransitions)
}

func TestInitConfig(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "registrly.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	sample := Configuration{
		ProjectName: "InitConfig Test",
		DataSource:  DataSourceConfig{Dns: "init-config-dns"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
	}
	require.NoError(t, json.NewEncoder(tmpFile).Encode(sample))
	tmpFile.Close()

	require.NoError(t, InitConfig(tmpFile.Name()))

	loaded, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "InitConfig Test", loaded.ProjectName)
	assert.Equal(t, "init-config-dns", loaded.DataSource.Dns)
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{ProjectName: "mocked"})
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "mocked", cnf.ProjectName)
}
