// Copyright 2026 Weft Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/log"
	"github.com/weftdb/weft/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft - conversational database assistant",
	Long: `Weft is a conversational database assistant. It connects an LLM to your
databases through a curated tool catalog: schema exploration, guarded SQL
execution, performance analysis, and cross-engine schema migration.

Quick start:
  1. Save a provider:   weft provider add claude --api-key sk-...
  2. Save a connection: weft connection add mydb --kind postgresql --host ...
  3. Start chatting:    weft chat
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		return log.Configure(cfg.Log.Level, cfg.Log.JSON)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: weft.yaml in data dir, CWD or /etc/weft)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(connectionCmd)
	rootCmd.AddCommand(providerCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	defer log.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
