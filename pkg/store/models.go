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

package store

import "time"

// Engine kinds accepted for database connections.
const (
	EnginePostgreSQL = "postgresql"
	EngineMySQL      = "mysql"
	EngineGaussDB    = "gaussdb"
	EngineOracle     = "oracle"
	EngineSQLServer  = "sqlserver"
)

// Connection is a saved database connection profile. Password holds the
// opaque encrypted blob, never plaintext.
type Connection struct {
	ID        string
	Name      string
	Kind      string
	Host      string
	Port      int
	Database  string
	Username  string
	Password  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Provider is a saved LLM provider profile. APIKey holds the opaque
// encrypted blob.
type Provider struct {
	ID        string
	Name      string
	Kind      string
	APIKey    string
	Model     string
	BaseURL   string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is one durable conversation.
type Session struct {
	ID           string
	Name         string
	ConnectionID string
	ProviderID   string
	IsCurrent    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StoredToolCall is the serialized form of one LLM tool call inside a
// chat message. Arguments are kept as the canonical JSON string the
// provider emitted; ThoughtSignature is an opaque provider blob that
// must survive the round trip.
type StoredToolCall struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Arguments        string `json:"arguments"`
	ThoughtSignature []byte `json:"thought_signature,omitempty"`
}

// ChatMessage is one durable conversation entry.
type ChatMessage struct {
	ID         string
	SessionID  string
	Role       string
	Content    string
	ToolCalls  []StoredToolCall
	ToolCallID string
	CreatedAt  time.Time
}

// ContextSummary records one compression of old messages.
type ContextSummary struct {
	ID               string
	SessionID        string
	Summary          string
	MessagesReplaced int
	TokensBefore     int
	TokensAfter      int
	CreatedAt        time.Time
}

// Migration task statuses.
const (
	TaskPending   = "pending"
	TaskPlanning  = "planning"
	TaskConfirmed = "confirmed"
	TaskExecuting = "executing"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// MigrationTask is one heterogeneous schema migration job.
type MigrationTask struct {
	ID                 string
	Name               string
	SourceConnectionID string
	TargetConnectionID string
	SourceKind         string
	TargetKind         string
	Status             string
	TotalCount         int
	CompletedCount     int
	FailedCount        int
	SkippedCount       int
	SourceSchema       string
	TargetSchema       string
	Options            string // JSON, includes auto_execute
	Analysis           string // JSON analysis result
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Migration item statuses.
const (
	ItemPending   = "pending"
	ItemExecuting = "executing"
	ItemCompleted = "completed"
	ItemFailed    = "failed"
	ItemSkipped   = "skipped"
)

// Migration item object types.
const (
	ObjectSequence   = "sequence"
	ObjectTable      = "table"
	ObjectIndex      = "index"
	ObjectView       = "view"
	ObjectFunction   = "function"
	ObjectProcedure  = "procedure"
	ObjectTrigger    = "trigger"
	ObjectConstraint = "constraint"
)

// MigrationItem is one database object inside a migration task.
type MigrationItem struct {
	ID              string
	TaskID          string
	ObjectType      string
	ObjectName      string
	Schema          string
	ExecutionOrder  int
	DependsOn       []string
	Status          string
	SourceDDL       string
	TargetDDL       string
	ConversionNotes string
	ExecutionResult string
	Error           string
	RetryCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MCPServer is a saved external tool-server launch configuration.
type MCPServer struct {
	ID        string
	Name      string
	Command   string
	Args      []string
	Env       map[string]string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Audit categories.
const (
	AuditSQLExecute   = "sql_execute"
	AuditToolCall     = "tool_call"
	AuditConfigChange = "config_change"
)

// Audit result statuses.
const (
	AuditSuccess = "success"
	AuditError   = "error"
	AuditPending = "pending"
)

// AuditRecord is one append-only audit log entry. Parameters is a JSON
// object with sensitive keys masked before persistence.
type AuditRecord struct {
	ID              string
	SessionID       string
	ConnectionID    string
	Category        string
	Action          string
	TargetType      string
	TargetName      string
	SQLText         string
	Parameters      string
	ResultStatus    string
	ResultSummary   string
	AffectedRows    int64
	ExecutionTimeMs int64
	UserConfirmed   bool
	CreatedAt       time.Time
}
