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
package middleware

import (
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"
	"github.com/registrly/registrly/config"
)

const (
	rateLimitedCode   = "RATE_LIMITED"
	defaultLimiterTTL = time.Hour
)

// newLimiter returns nil when rate limiting is not configured.
func newLimiter(cfg config.RateLimitConfig) *limiter.Limiter {
	if cfg.RequestsPerSecond == nil || cfg.Burst == nil {
		return nil
	}
	ttl := defaultLimiterTTL
	if cfg.CleanupIntervalSec != nil && *cfg.CleanupIntervalSec > 0 {
		ttl = time.Duration(*cfg.CleanupIntervalSec) * time.Second
	}
	lmt := tollbooth.NewLimiter(*cfg.RequestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: ttl,
	})
	lmt.SetBurst(*cfg.Burst)
	return lmt
}

// RateLimit throttles each client IP with a token bucket. Rejected requests
// get the standard error body with a RATE_LIMITED code.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	lmt := newLimiter(cfg)
	if lmt == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if httpError := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpError != nil {
			c.AbortWithStatusJSON(httpError.StatusCode, gin.H{"code": rateLimitedCode, "error": httpError.Message})
			return
		}
		c.Next()
	}
}
