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
// Package tool defines the tool-call surface the conversation engine exposes
// to the LLM: definitions with JSON schemas, tagged results, and a registry
// mapping tool names to handlers.
package tool

import (
	"context"
	"encoding/json"
)

// Status tags every tool result. Tool handlers never raise across the engine
// boundary; failures and gate decisions are folded into the status.
type Status string

const (
	StatusSuccess                 Status = "success"
	StatusError                   Status = "error"
	StatusPendingConfirmation     Status = "pending_confirmation"
	StatusPendingPerformance      Status = "pending_performance_confirmation"
	StatusFormInputRequested      Status = "form_input_requested"
	StatusMigrationSetupRequested Status = "migration_setup_requested"
	StatusSkipped                 Status = "skipped"
)

// Handler executes a tool call with parsed arguments.
type Handler func(ctx context.Context, args map[string]interface{}) *Result

// Definition describes one tool in the catalog sent to the LLM.
type Definition struct {
	Name        string
	Description string
	Parameters  *JSONSchema

	// Source identifies who owns the tool: "builtin", "migration",
	// "interaction", "skill" or the name of an external tool server.
	Source string

	Handler Handler
}

// Result is the outcome of a tool execution.
type Result struct {
	Status Status `json:"status"`

	// Data carries kind-specific payload fields (rows, columns, plan, ...).
	Data map[string]interface{} `json:"data,omitempty"`

	// Message is a human-readable note (error text, confirmation prompt).
	Message string `json:"message,omitempty"`

	// Retryable marks transient errors (external server timeouts).
	Retryable bool `json:"retryable,omitempty"`

	// AffectedRows is set for successful mutations.
	AffectedRows int64 `json:"affected_rows,omitempty"`

	// ExecutionTimeMs is the wall time spent in the handler.
	ExecutionTimeMs int64 `json:"execution_time_ms,omitempty"`
}

// Success builds a success result with the given payload.
func Success(data map[string]interface{}) *Result {
	return &Result{Status: StatusSuccess, Data: data}
}

// Errorf builds an error result.
func Errorf(message string) *Result {
	return &Result{Status: StatusError, Message: message}
}

// ToJSON serializes the result for persistence as a tool message.
func (r *Result) ToJSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"status":"error","message":"unserializable tool result"}`
	}
	return string(data)
}

// IsPending reports whether the result requires front-end interaction
// before the turn can continue.
func (r *Result) IsPending() bool {
	switch r.Status {
	case StatusPendingConfirmation, StatusPendingPerformance,
		StatusFormInputRequested, StatusMigrationSetupRequested:
		return true
	}
	return false
}
