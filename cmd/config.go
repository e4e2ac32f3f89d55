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
	"encoding/json"
	"fmt"
	"log"

	"github.com/registrly/registrly/config"
	"github.com/spf13/cobra"
)

const redacted = "********"

// redactConfig masks credentials before the configuration is printed.
func redactConfig(cfg config.Configuration) config.Configuration {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.Server.SecretKey)
	mask(&cfg.Auth.JWTSecret)
	mask(&cfg.Payments.SecretKey)
	mask(&cfg.Payments.WebhookSecret)
	mask(&cfg.TypeSense.Key)
	mask(&cfg.Telemetry.PostHogKey)
	return cfg
}

func configCommands(r *registrlyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "print the resolved configuration",
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			data, err := json.MarshalIndent(redactConfig(*r.cnf), "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}
			fmt.Println(string(data))
		},
	}
	return cmd
}
