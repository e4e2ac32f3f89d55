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
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/registrly/registrly/api/middleware"
	"github.com/registrly/registrly/model"
	"github.com/spf13/cobra"
)

// tokenCommands issues a session token signed with the configured JWT secret.
func tokenCommands(r *registrlyInstance) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:         "token",
		Short:       "issue a session token for a user or admin",
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if r.cnf.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			actorRole := model.Role(role)
			if actorRole != model.RoleUser && actorRole != model.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := middleware.GenerateToken(r.cnf.Auth.JWTSecret, r.cnf.Auth.Issuer, model.Actor{ID: subject, Role: actorRole}, ttl)
			if err != nil {
				log.Printf("Error signing token: %v", err)
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "user id the token is issued to")
	cmd.Flags().StringVar(&role, "role", string(model.RoleUser), "user or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
