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
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the base name of the YAML config file (weft.yaml).
const DefaultConfigFileName = "weft"

// Config is the top-level weft configuration, loaded from weft.yaml with
// WEFT_* environment overrides.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Audit     AuditConfig     `mapstructure:"audit"`
	ToolCall  ToolCallConfig  `mapstructure:"tool_call"`
	Secret    SecretConfig    `mapstructure:"secret"`
	Language  string          `mapstructure:"language"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// AgentConfig controls the conversation engine.
type AgentConfig struct {
	MaxIterations        int     `mapstructure:"max_iterations"`
	KeepRecentMessages   int     `mapstructure:"keep_recent_messages"`
	CompressionThreshold float64 `mapstructure:"compression_threshold"`
}

// AnalyzerConfig holds SQL analyzer thresholds.
type AnalyzerConfig struct {
	FullScanRows    int64   `mapstructure:"full_scan_rows"`
	LargeResultRows int64   `mapstructure:"large_result_rows"`
	NestedLoopRows  int64   `mapstructure:"nested_loop_rows"`
	TotalCost       float64 `mapstructure:"total_cost"`
}

// AuditConfig controls audit retention.
type AuditConfig struct {
	RetentionDays int    `mapstructure:"retention_days"`
	PurgeSchedule string `mapstructure:"purge_schedule"`
}

// ToolCallConfig bounds external tool-server calls.
type ToolCallConfig struct {
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds"`
	CallTimeoutSeconds    int `mapstructure:"call_timeout_seconds"`
}

// SecretConfig selects the credential store backend.
type SecretConfig struct {
	// Backend is "machine" (XOR obfuscation over a machine-derived key) or
	// "keyring" (OS secret service).
	Backend string `mapstructure:"backend"`
}

// Load reads the configuration, searching the data directory, the current
// directory and /etc/weft/ in that order. A missing file is not an error;
// defaults and environment variables still apply.
func Load(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(DataDir())
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/weft/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.SetEnvPrefix("WEFT")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)

	viper.SetDefault("language", "en")

	viper.SetDefault("agent.max_iterations", 30)
	viper.SetDefault("agent.keep_recent_messages", 10)
	viper.SetDefault("agent.compression_threshold", 0.8)

	viper.SetDefault("analyzer.full_scan_rows", 10000)
	viper.SetDefault("analyzer.large_result_rows", 100000)
	viper.SetDefault("analyzer.nested_loop_rows", 1000)
	viper.SetDefault("analyzer.total_cost", 10000)

	viper.SetDefault("audit.retention_days", 30)
	viper.SetDefault("audit.purge_schedule", "0 3 * * *")

	viper.SetDefault("tool_call.connect_timeout_seconds", 5)
	viper.SetDefault("tool_call.call_timeout_seconds", 30)

	viper.SetDefault("secret.backend", "machine")
}
