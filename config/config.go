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
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT     = "5001"
	DEFAULT_CURRENCY = "usd"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"REGISTRLY_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"REGISTRLY_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"REGISTRLY_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"REGISTRLY_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"REGISTRLY_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"REGISTRLY_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"REGISTRLY_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"REGISTRLY_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"REGISTRLY_REDIS_SKIP_TLS_VERIFY"`
}

type TypeSenseConfig struct {
	Dns string `json:"dns" envconfig:"REGISTRLY_TYPESENSE_DNS"`
	Key string `json:"key" envconfig:"REGISTRLY_TYPESENSE_KEY"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" envconfig:"REGISTRLY_AUTH_JWT_SECRET"`
	Issuer    string `json:"issuer" envconfig:"REGISTRLY_AUTH_ISSUER"`
}

// PaymentConfig describes the hosted checkout provider and how sessions are reconciled.
type PaymentConfig struct {
	ProviderBaseURL  string        `json:"provider_base_url" envconfig:"REGISTRLY_PAYMENTS_PROVIDER_BASE_URL"`
	SecretKey        string        `json:"secret_key" envconfig:"REGISTRLY_PAYMENTS_SECRET_KEY"`
	WebhookSecret    string        `json:"webhook_secret" envconfig:"REGISTRLY_PAYMENTS_WEBHOOK_SECRET"`
	Currency         string        `json:"currency" envconfig:"REGISTRLY_PAYMENTS_CURRENCY"`
	SuccessURL       string        `json:"success_url" envconfig:"REGISTRLY_PAYMENTS_SUCCESS_URL"`
	CancelURL        string        `json:"cancel_url" envconfig:"REGISTRLY_PAYMENTS_CANCEL_URL"`
	SessionTTL       time.Duration `json:"session_ttl" envconfig:"REGISTRLY_PAYMENTS_SESSION_TTL"`
	SweepInterval    time.Duration `json:"sweep_interval" envconfig:"REGISTRLY_PAYMENTS_SWEEP_INTERVAL"`
	SweepAfter       time.Duration `json:"sweep_after" envconfig:"REGISTRLY_PAYMENTS_SWEEP_AFTER"`
	MaxRetries       uint64        `json:"max_retries" envconfig:"REGISTRLY_PAYMENTS_MAX_RETRIES"`
	RequestTimeout   time.Duration `json:"request_timeout" envconfig:"REGISTRLY_PAYMENTS_REQUEST_TIMEOUT"`
	SignatureHeader  string        `json:"signature_header" envconfig:"REGISTRLY_PAYMENTS_SIGNATURE_HEADER"`
	SignatureMaxSkew time.Duration `json:"signature_max_skew" envconfig:"REGISTRLY_PAYMENTS_SIGNATURE_MAX_SKEW"`
}

type PricingConfig struct {
	RejectUnknownServices bool `json:"reject_unknown_services" envconfig:"REGISTRLY_PRICING_REJECT_UNKNOWN_SERVICES"`
}

type LifecycleConfig struct {
	EnforceTransitions bool `json:"enforce_transitions" envconfig:"REGISTRLY_LIFECYCLE_ENFORCE_TRANSITIONS"`
}

type QueueConfig struct {
	PaymentEventQueue string `json:"payment_event_queue" envconfig:"REGISTRLY_QUEUE_PAYMENT_EVENT_QUEUE"`
	ExpiryQueue       string `json:"expiry_queue" envconfig:"REGISTRLY_QUEUE_EXPIRY_QUEUE"`
	WebhookQueue      string `json:"webhook_queue" envconfig:"REGISTRLY_QUEUE_WEBHOOK_QUEUE"`
	IndexQueue        string `json:"index_queue" envconfig:"REGISTRLY_QUEUE_INDEX_QUEUE"`
	Concurrency       int    `json:"concurrency" envconfig:"REGISTRLY_QUEUE_CONCURRENCY"`
	MaxRetryAttempts  int    `json:"max_retry_attempts" envconfig:"REGISTRLY_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"REGISTRLY_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"REGISTRLY_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"REGISTRLY_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"REGISTRLY_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"REGISTRLY_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"REGISTRLY_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type TelemetryConfig struct {
	Enabled    bool   `json:"enabled" envconfig:"REGISTRLY_TELEMETRY_ENABLED"`
	PostHogKey string `json:"posthog_key" envconfig:"REGISTRLY_TELEMETRY_POSTHOG_KEY"`
	PostHogURL string `json:"posthog_url" envconfig:"REGISTRLY_TELEMETRY_POSTHOG_URL"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"REGISTRLY_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	TypeSense    TypeSenseConfig  `json:"typesense"`
	Auth         AuthConfig       `json:"auth"`
	Payments     PaymentConfig    `json:"payments"`
	Pricing      PricingConfig    `json:"pricing"`
	Lifecycle    LifecycleConfig  `json:"lifecycle"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Telemetry    TelemetryConfig  `json:"telemetry"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("registrly", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called registrly.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Registrly Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Server.Secure && cnf.Server.SecretKey == "" {
		return errors.New("server secret key is required when secure mode is enabled")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Payments.ProviderBaseURL = strings.TrimRight(strings.TrimSpace(cnf.Payments.ProviderBaseURL), "/")

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.setPaymentDefaults()
	cnf.setQueueDefaults()

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (cnf *Configuration) setPaymentDefaults() {
	p := &cnf.Payments
	if p.ProviderBaseURL == "" {
		p.ProviderBaseURL = "https://api.stripe.com"
	}
	if p.Currency == "" {
		p.Currency = DEFAULT_CURRENCY
	}
	p.Currency = strings.ToLower(p.Currency)
	if p.SessionTTL == 0 {
		p.SessionTTL = time.Hour
	}
	if p.SweepInterval == 0 {
		p.SweepInterval = 5 * time.Minute
	}
	if p.SweepAfter == 0 {
		p.SweepAfter = 10 * time.Minute
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.RequestTimeout == 0 {
		p.RequestTimeout = 15 * time.Second
	}
	if p.SignatureHeader == "" {
		p.SignatureHeader = "Stripe-Signature"
	}
	if p.SignatureMaxSkew == 0 {
		p.SignatureMaxSkew = 5 * time.Minute
	}
	if p.SecretKey == "" {
		log.Println("Warning: payment provider secret key is empty. Checkout sessions will fail.")
	}
}

func (cnf *Configuration) setQueueDefaults() {
	q := &cnf.Queue
	if q.PaymentEventQueue == "" {
		q.PaymentEventQueue = "payment_events"
	}
	if q.ExpiryQueue == "" {
		q.ExpiryQueue = "session_expiry"
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = "webhook_notifications"
	}
	if q.IndexQueue == "" {
		q.IndexQueue = "search_index"
	}
	if q.Concurrency == 0 {
		q.Concurrency = 10
	}
	if q.MaxRetryAttempts == 0 {
		q.MaxRetryAttempts = 10
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5004"
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
