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
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/registrly/registrly"
	"github.com/registrly/registrly/api"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/internal/search"
	"github.com/registrly/registrly/internal/traces"
	"github.com/spf13/cobra"
)

const heartbeatInterval = 5 * time.Minute

/*
serveTLS starts an HTTPS server with certificates managed by CertMagic.
Without a configured domain it falls back to localhost.
*/
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: certStoragePath()}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTPS server: %v", err)
	}
	return nil
}

func certStoragePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "registrly", "certmagic")
	}
	return filepath.Join(os.TempDir(), "registrly-certmagic")
}

// migrateTypeSenseSchema adds fields introduced since a collection was created.
func migrateTypeSenseSchema(ctx context.Context, t *search.TypesenseClient) error {
	collections := []string{search.CollectionSubmissions, search.CollectionTransactions, search.CollectionContactQueries}
	for _, c := range collections {
		if err := t.MigrateTypeSenseSchema(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func initializeTypeSense(ctx context.Context, cfg *config.Configuration) error {
	if cfg.TypeSense.Dns == "" {
		return nil
	}
	client := search.NewTypesenseClient(cfg.TypeSense.Key, []string{cfg.TypeSense.Dns})
	if err := client.EnsureCollectionsExist(ctx); err != nil {
		return fmt.Errorf("failed to ensure collections exist: %v", err)
	}
	if err := migrateTypeSenseSchema(ctx, client); err != nil {
		return fmt.Errorf("failed to migrate typesense schema: %v", err)
	}
	return nil
}

// sendHeartbeat reports that this process is alive until ctx ends.
func sendHeartbeat(ctx context.Context, analytics *registrly.Analytics, heartbeatID, role string) {
	ticker := time.NewTicker(heartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				analytics.Capture(heartbeatID, "server_heartbeat", map[string]interface{}{
					"role":      role,
					"timestamp": time.Now().UTC(),
				})
			}
		}
	}()
}

// initializeObservability installs tracing and the heartbeat when telemetry
// is enabled. The returned func flushes both.
func initializeObservability(ctx context.Context, cfg *config.Configuration, role string) (func(context.Context) error, error) {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	shutdownTraces, err := traces.SetupOTelSDK(ctx, cfg.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}

	analytics := registrly.NewAnalytics(cfg.Telemetry)
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	if analytics != nil {
		sendHeartbeat(heartbeatCtx, analytics, uuid.New().String(), role)
	}

	return func(ctx context.Context) error {
		stopHeartbeat()
		analytics.Close()
		return shutdownTraces(ctx)
	}, nil
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// serverCommands returns the "start" command that serves the HTTP API.
func serverCommands(r *registrlyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start registrly server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			cfg := r.cnf

			shutdown, err := initializeObservability(ctx, cfg, "server")
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			defer func() {
				if err := r.registrly.Close(); err != nil {
					log.Printf("Error closing registrly: %v", err)
				}
			}()

			if err := initializeTypeSense(ctx, cfg); err != nil {
				log.Printf("TypeSense initialization error: %v", err)
			}

			router := api.NewAPI(r.registrly).Router()
			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
