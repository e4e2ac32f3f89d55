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
	"os"

	"github.com/registrly/registrly"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/database"
	"github.com/registrly/registrly/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Registrly wraps the root Cobra command.
type Registrly struct {
	cmd *cobra.Command
}

// registrlyInstance carries the service and its configuration into every command.
type registrlyInstance struct {
	registrly *registrly.Registrly
	cnf       *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file and builds the service before any
// command that needs it runs.
func preRun(app *registrlyInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			log.Fatal("error loading config ", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf

		if cmd.Annotations[skipSetup] == "true" {
			return nil
		}

		newRegistrly, err := setupRegistrly(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		app.registrly = newRegistrly
		return nil
	}
}

// skipSetup marks commands that only need configuration, not a live service.
const skipSetup = "skip_setup"

func setupRegistrly(cfg *config.Configuration) (*registrly.Registrly, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newRegistrly, err := registrly.NewRegistrly(db)
	if err != nil {
		return nil, fmt.Errorf("error creating registrly: %v", err)
	}
	return newRegistrly, nil
}

func NewCLI() *Registrly {
	var configFile string
	r := &registrlyInstance{}

	var rootCmd = &cobra.Command{
		Use:   "registrly",
		Short: "Business registration backend",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./registrly.json", "Configuration file for registrly")
	rootCmd.PersistentPreRunE = preRun(r, &configFile)

	rootCmd.AddCommand(serverCommands(r))
	rootCmd.AddCommand(workerCommands(r))
	rootCmd.AddCommand(migrateCommands(r))
	rootCmd.AddCommand(configCommands(r))
	rootCmd.AddCommand(tokenCommands(r))

	return &Registrly{cmd: rootCmd}
}

func (w Registrly) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
