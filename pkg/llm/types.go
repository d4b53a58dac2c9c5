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
// Package llm contains the provider contract and shared message types used
// by the conversation engine and the per-provider clients.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// FinishReason indicates why the LLM stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishError     FinishReason = "error"
)

// ToolCall is an LLM-emitted request to invoke a named tool.
type ToolCall struct {
	// ID is the provider-assigned stable identifier for this call.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments holds the parsed JSON arguments.
	Arguments map[string]interface{} `json:"arguments"`

	// ThoughtSignature is an opaque per-call blob some providers (Gemini)
	// require to be round-tripped on subsequent turns. Preserved verbatim.
	ThoughtSignature []byte `json:"thought_signature,omitempty"`
}

// ArgumentsJSON returns the canonical JSON form of the arguments, used when
// echoing the assistant message back into the durable history.
func (tc ToolCall) ArgumentsJSON() string {
	data, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Message is a single conversation entry.
type Message struct {
	// ID is the durable message identifier (empty until persisted).
	ID string

	// Role is "user", "assistant" or "tool".
	Role string

	// Content is the message text. May be empty for assistant messages
	// that only carry tool calls.
	Content string

	// ToolCalls are present when Role is "assistant" and the model
	// requested tool executions.
	ToolCalls []ToolCall

	// ToolCallID binds a Role=="tool" message to the assistant tool call
	// it answers. Required when Role is "tool".
	ToolCallID string

	// CreatedAt orders messages within a session.
	CreatedAt time.Time
}

// ToolDefinition is the provider-neutral shape of one catalog entry.
// json.RawMessage keeps the schema bytes provider-agnostic.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Usage tracks token consumption of one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the provider-neutral result of one chat call.
type Response struct {
	FinishReason FinishReason
	Content      string
	ToolCalls    []ToolCall
	Usage        Usage
}

// Provider is the contract every LLM client implements.
type Provider interface {
	// Chat sends the conversation and tool catalog, returning one response.
	// Providers fold API failures into FinishError responses with a coded,
	// human-readable Content; transport-level errors are returned as error.
	Chat(ctx context.Context, system string, messages []Message, tools []ToolDefinition) (*Response, error)

	// Name returns the provider kind ("claude", "openai", ...).
	Name() string

	// Model returns the configured model identifier.
	Model() string
}
