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
// Package anthropic implements the llm.Provider contract for Claude's
// Messages API.
package anthropic

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
	// DefaultModel is the default Claude model.
	DefaultModel = "claude-sonnet-4-5"
	// DefaultEndpoint is the default Anthropic Messages API endpoint.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	// DefaultMaxTokens is the default maximum tokens per request.
	DefaultMaxTokens = 4096
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 120 * time.Second

	apiVersion = "2023-06-01"
)

// Client implements llm.Provider for Anthropic's Claude API.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	maxTokens  int
	language   string
	httpClient *http.Client
}

// Config holds configuration for the Anthropic client.
type Config struct {
	APIKey    string
	Model     string // Default: claude-sonnet-4-5
	Endpoint  string // Default: https://api.anthropic.com/v1/messages
	Timeout   time.Duration
	MaxTokens int
	Language  string // Language for rendered API error messages
}

// NewClient creates a new Anthropic client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		if envModel := os.Getenv("ANTHROPIC_DEFAULT_MODEL"); envModel != "" {
			config.Model = envModel
		} else {
			config.Model = DefaultModel
		}
	}
	if config.Endpoint == "" {
		if envEndpoint := os.Getenv("ANTHROPIC_API_ENDPOINT"); envEndpoint != "" {
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
		model:      config.Model,
		endpoint:   config.Endpoint,
		maxTokens:  config.MaxTokens,
		language:   config.Language,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider kind.
func (c *Client) Name() string { return "claude" }

// Model returns the model identifier.
func (c *Client) Model() string { return c.model }

// Chat sends a conversation to Claude and returns the response.
func (c *Client) Chat(ctx context.Context, system string, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	req := &messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  convertMessages(messages),
		Tools:     convertTools(tools),
	}

	resp, err := c.callAPI(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.errResponse != nil {
		return resp.errResponse, nil
	}
	return convertResponse(resp.api), nil
}

type apiResult struct {
	api         *messagesResponse
	errResponse *llm.Response
}

func (c *Client) callAPI(ctx context.Context, req *messagesRequest) (*apiResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

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
		return &apiResult{errResponse: llm.ErrorResponse(code, c.language, detail)}, nil
	}

	var apiResp messagesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &apiResult{api: &apiResp}, nil
}

func convertMessages(messages []llm.Message) []apiMessage {
	var out []apiMessage
	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			var blocks []contentBlock
			if msg.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, contentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Arguments,
				})
			}
			out = append(out, apiMessage{Role: "assistant", Content: blocks})
		case "tool":
			out = append(out, apiMessage{Role: "user", Content: []contentBlock{{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
			}}})
		default:
			out = append(out, apiMessage{Role: "user", Content: []contentBlock{{
				Type: "text",
				Text: msg.Content,
			}}})
		}
	}
	return out
}

func convertTools(tools []llm.ToolDefinition) []apiTool {
	var out []apiTool
	for _, t := range tools {
		schema := t.Parameters
		if schema == nil {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, apiTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return out
}

func convertResponse(resp *messagesResponse) *llm.Response {
	out := &llm.Response{
		Usage: llm.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	if resp.StopReason == "tool_use" || len(out.ToolCalls) > 0 {
		out.FinishReason = llm.FinishToolCalls
	} else {
		out.FinishReason = llm.FinishStop
	}
	return out
}
