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

// Package adapter provides a uniform capability surface over the supported
// database engines (PostgreSQL, MySQL, GaussDB, Oracle, SQL Server). Every
// operation returns a tagged Result and never panics or raises across the
// boundary; errors are folded into Result.Status == "error".
package adapter

import (
	"context"
	"fmt"
)

// Result statuses.
const (
	StatusSuccess             = "success"
	StatusError               = "error"
	StatusPendingConfirmation = "pending_confirmation"
	StatusPendingPerformance  = "pending_performance_confirmation"
)

// Result is the tagged outcome of one adapter operation. Data carries the
// operation-specific payload (rows, plan text, object lists).
type Result struct {
	Status          string                 `json:"status"`
	Message         string                 `json:"message,omitempty"`
	Note            string                 `json:"note,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
	AffectedRows    int64                  `json:"affected_rows,omitempty"`
	ExecutionTimeMs int64                  `json:"execution_time_ms,omitempty"`
}

// Success builds a success result with the given payload.
func Success(data map[string]interface{}) *Result {
	return &Result{Status: StatusSuccess, Data: data}
}

// Errorf builds an error result.
func Errorf(format string, args ...interface{}) *Result {
	return &Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// PendingConfirmation builds the result returned for unconfirmed mutations.
func PendingConfirmation(sql string) *Result {
	return &Result{
		Status:  StatusPendingConfirmation,
		Message: "this statement modifies the database and requires confirmation",
		Data:    map[string]interface{}{"sql": sql},
	}
}

// Config describes a database connection. Password is plaintext here; the
// caller decrypts the stored blob before constructing an adapter.
type Config struct {
	Kind     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Adapter is the uniform per-engine capability surface.
type Adapter interface {
	// Kind returns the engine kind ("postgresql", "mysql", ...).
	Kind() string

	// GetDBInfo returns engine kind, version and cached feature flags.
	GetDBInfo(ctx context.Context) *Result

	ListTables(ctx context.Context, schema string) *Result
	DescribeTable(ctx context.Context, table, schema string) *Result
	GetSampleData(ctx context.Context, table, schema string, limit int) *Result
	ListDatabases(ctx context.Context) *Result

	// ExecuteSafeQuery runs read-only statements. Bare projection lists are
	// auto-prefixed with SELECT.
	ExecuteSafeQuery(ctx context.Context, sql string) *Result

	// ExecuteSQL runs any statement. Read-only statements execute
	// immediately; mutations return pending_confirmation unless confirmed.
	ExecuteSQL(ctx context.Context, sql string, confirmed bool) *Result

	// RunExplain returns the engine's native plan. analyze=true executes
	// the statement for real where the engine supports it.
	RunExplain(ctx context.Context, sql string, analyze bool) *Result

	// CreateIndex asserts a CREATE INDEX prefix and rewrites to the
	// engine's non-locking variant when concurrent is requested.
	CreateIndex(ctx context.Context, sql string, concurrent bool) *Result

	// CheckQueryPerformance explains the statement and folds the plan
	// analysis into the result. EXPLAIN failure is advisory.
	CheckQueryPerformance(ctx context.Context, sql string) *Result

	AnalyzeTable(ctx context.Context, table, schema string) *Result
	CheckIndexUsage(ctx context.Context, table, schema string) *Result
	GetTableStats(ctx context.Context, table, schema string) *Result
	GetRunningQueries(ctx context.Context) *Result
	IdentifySlowQueries(ctx context.Context, minMs, limit int) *Result

	// Migration support.
	GetAllObjects(ctx context.Context, schema string, objectTypes []string) *Result
	GetObjectDDL(ctx context.Context, objectType, name, schema string) *Result
	GetObjectDependencies(ctx context.Context, schema string) *Result
	GetForeignKeyDependencies(ctx context.Context, schema string) *Result

	// Close releases the underlying connections.
	Close() error
}

// New constructs the adapter for the configured engine kind.
func New(cfg Config) (Adapter, error) {
	switch cfg.Kind {
	case "postgresql":
		return newPostgres(cfg)
	case "gaussdb":
		return newGaussDB(cfg)
	case "mysql":
		return newMySQL(cfg)
	case "oracle":
		return newOracle(cfg)
	case "sqlserver":
		return newSQLServer(cfg)
	default:
		return nil, fmt.Errorf("unsupported engine kind %q", cfg.Kind)
	}
}
