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
// Package openai implements the llm.Provider contract for the OpenAI chat
// completions API and compatible endpoints (DeepSeek, Qwen/DashScope, and
// other gateways that speak the same wire format).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/weftdb/weft/pkg/llm"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"
	// DefaultEndpoint is the OpenAI chat completions endpoint.
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 120 * time.Second
	// DefaultMaxTokens bounds completion length.
	DefaultMaxTokens = 4096
)

// Client implements llm.Provider for OpenAI-compatible APIs.
type Client struct {
	apiKey     string
	kind       string
	model      string
	endpoint   string
	maxTokens  int
	language   string
	httpClient *http.Client
}

// Config holds configuration for the client.
type Config struct {
	APIKey    string
	Kind      string // Provider kind reported by Name(); default "openai"
	Model     string
	Endpoint  string // Full chat-completions URL; default OpenAI's
	Timeout   time.Duration
	MaxTokens int
	Language  string
}

// NewClient creates a new OpenAI-compatible client.
func NewClient(config Config) *Client {
	if config.Kind == "" {
		config.Kind = "openai"
	}
	if config.Model == "" {
		if envModel := os.Getenv("OPENAI_DEFAULT_MODEL"); envModel != "" {
			config.Model = envModel
		} else {
			config.Model = DefaultModel
		}
	}
	if config.Endpoint == "" {
		if envEndpoint := os.Getenv("OPENAI_API_ENDPOINT"); envEndpoint != "" {
			config.Endpoint = envEndpoint
		} else {
			config.Endpoint = DefaultEndpoint
		}
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Language == "" {
		config.Language = "en"
	}

	return &Client{
		apiKey:     config.APIKey,
		kind:       config.Kind,
		model:      config.Model,
		endpoint:   config.Endpoint,
		maxTokens:  config.MaxTokens,
		language:   config.Language,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider kind.
func (c *Client) Name() string { return c.kind }

// Model returns the model identifier.
func (c *Client) Model() string { return c.model }

// Chat sends a conversation and returns the response.
func (c *Client) Chat(ctx context.Context, system string, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	req := &chatRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  convertMessages(system, messages),
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		code := llm.CodeFromHTTPStatus(httpResp.StatusCode)
		var apiErr errorResponse
		detail := ""
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			detail = apiErr.Error.Message
		}
		return llm.ErrorResponse(code, c.language, detail), nil
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return convertResponse(&apiResp)
}

func convertMessages(system string, messages []llm.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, chatMessage{Role: "system", Content: system})
	}
	for _, msg := range messages {
		m := chatMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == "tool" {
			m.ToolCallID = msg.ToolCallID
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, apiToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: apiFunctionCall{
					Name:      tc.Name,
					Arguments: tc.ArgumentsJSON(),
				},
			})
		}
		out = append(out, m)
	}
	return out
}

func convertTools(tools []llm.ToolDefinition) []apiTool {
	out := make([]apiTool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func convertResponse(resp *chatResponse) (*llm.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in response")
	}
	choice := resp.Choices[0]

	out := &llm.Response{
		Content: choice.Message.Content,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			// Tolerate malformed argument JSON; the tool layer reports it.
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	if choice.FinishReason == "tool_calls" || len(out.ToolCalls) > 0 {
		out.FinishReason = llm.FinishToolCalls
	} else {
		out.FinishReason = llm.FinishStop
	}
	return out, nil
}
