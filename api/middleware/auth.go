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
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/model"
	"github.com/sirupsen/logrus"
)

const (
	KeyHeader       = "X-Registrly-Key"
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"

	actorKey = "actor"
)

// defaultAdminID is recorded in timelines when the master key is used without X-Actor-ID.
const defaultAdminID = "admin"

var errInvalidToken = errors.New("invalid session token")

// Claims is the session token payload. Subject carries the user id.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 session token for actor.
func GenerateToken(secret, issuer string, actor model.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateToken parses a session token and returns the actor it names.
func ValidateToken(secret, issuer, tokenStr string) (model.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return model.Actor{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return model.Actor{}, errInvalidToken
	}
	role := claims.Role
	if role != model.RoleAdmin {
		role = model.RoleUser
	}
	return model.Actor{ID: claims.Subject, Role: role}, nil
}

// WarnIfInsecure logs a startup warning when server.secure is off, since any
// caller can then claim an admin role through X-Actor-Role. It reports whether
// the warning was logged.
func WarnIfInsecure(server config.ServerConfig) bool {
	if server.Secure {
		return false
	}
	logrus.WithField("header", ActorRoleHeader).
		Warn("server.secure is disabled: actor headers are trusted as sent, do not expose this server publicly")
	return true
}

// Authenticate resolves the caller into an actor stored on the context.
// Requests without credentials continue as anonymous; routes that need a
// user or an admin enforce it with RequireUser or RequireAdmin.
//
// Credentials, in order:
//   - X-Registrly-Key matching server.secret_key: an admin, named by X-Actor-ID when present.
//   - Authorization: Bearer <token>: the token's subject and role.
//   - When server.secure is off: X-Actor-ID and X-Actor-Role as sent.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		conf, err := config.Fetch()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "configuration not loaded"})
			return
		}

		if key := c.GetHeader(KeyHeader); key != "" {
			if conf.Server.SecretKey == "" || !secureCompare(conf.Server.SecretKey, key) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret key"})
				return
			}
			id := c.GetHeader(ActorIDHeader)
			if id == "" {
				id = defaultAdminID
			}
			c.Set(actorKey, model.Actor{ID: id, Role: model.RoleAdmin})
			c.Next()
			return
		}

		if token := bearerToken(c); token != "" {
			if conf.Auth.JWTSecret == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session tokens are not enabled"})
				return
			}
			actor, err := ValidateToken(conf.Auth.JWTSecret, conf.Auth.Issuer, token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token"})
				return
			}
			c.Set(actorKey, actor)
			c.Next()
			return
		}

		if !conf.Server.Secure {
			if id := c.GetHeader(ActorIDHeader); id != "" {
				role := model.RoleUser
				if model.Role(c.GetHeader(ActorRoleHeader)) == model.RoleAdmin {
					role = model.RoleAdmin
				}
				c.Set(actorKey, model.Actor{ID: id, Role: role})
			}
		}
		c.Next()
	}
}

// RequireUser rejects anonymous callers.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ActorFromContext(c).ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers that are not operators.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFromContext(c)
		if actor.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if !actor.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// ActorFromContext returns the resolved caller, or the zero actor when anonymous.
func ActorFromContext(c *gin.Context) model.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return model.Actor{}
	}
	actor, _ := v.(model.Actor)
	return actor
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
