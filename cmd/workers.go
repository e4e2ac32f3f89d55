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

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/registrly/registrly"
	"github.com/registrly/registrly/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// initializeQueues weights the queues so payment reconciliation is served
// ahead of notifications and indexing.
func initializeQueues(cfg config.QueueConfig) map[string]int {
	queues := map[string]int{
		cfg.PaymentEventQueue: 6,
		cfg.ExpiryQueue:       3,
		cfg.WebhookQueue:      2,
		cfg.IndexQueue:        1,
	}
	delete(queues, "")
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := registrly.RedisClientOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	concurrency := conf.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return asynq.NewServer(
		redisOption,
		asynq.Config{
			Concurrency: concurrency,
			Queues:      queues,
		},
	), nil
}

// startMonitoring serves the asynqmon dashboard under /monitoring.
func startMonitoring(conf *config.Configuration) error {
	redisOption, err := registrly.RedisClientOpt(conf)
	if err != nil {
		return err
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOption,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			log.Fatalf("could not start asynqmon server: %v", err)
		}
	}()
	return nil
}

// workerCommands returns the "workers" command. It processes payment events,
// session expiry checks, outbound webhooks and search indexing, and runs the
// pending payment sweeper alongside.
func workerCommands(r *registrlyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start registrly workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := r.cnf

			shutdown, err := initializeObservability(ctx, conf, "workers")
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(conf, initializeQueues(conf.Queue))
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			r.registrly.RegisterHandlers(mux)

			if conf.Queue.MonitoringPort != "" {
				if err := startMonitoring(conf); err != nil {
					log.Fatal(err)
				}
			}

			sweeper := registrly.NewSweeper(r.registrly, conf.Payments.SweepInterval, conf.Payments.SweepAfter)
			sweeper.Start()
			defer sweeper.Stop()

			if err := srv.Run(mux); err != nil {
				logrus.WithError(err).Error("could not run worker server")
			}
		},
	}

	return cmd
}
