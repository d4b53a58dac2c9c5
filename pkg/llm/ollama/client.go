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
// Package ollama implements the llm.Provider contract for a local Ollama
// server using its native /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/weftdb/weft/pkg/llm"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "llama3.1"
	// DefaultBaseURL is the default local Ollama address.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultTimeout allows for slow local generation.
	DefaultTimeout = 300 * time.Second
)

// Client implements llm.Provider for Ollama.
type Client struct {
	model      string
	baseURL    string
	language   string
	httpClient *http.Client
}

// Config holds configuration for the Ollama client.
type Config struct {
	Model    string
	BaseURL  string
	Timeout  time.Duration
	Language string
}

// NewClient creates a new Ollama client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		if envHost := os.Getenv("OLLAMA_HOST"); envHost != "" {
			config.BaseURL = envHost
		} else {
			config.BaseURL = DefaultBaseURL
		}
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Language == "" {
		config.Language = "en"
	}

	return &Client{
		model:      config.Model,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		language:   config.Language,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider kind.
func (c *Client) Name() string { return "ollama" }

// Model returns the model identifier.
func (c *Client) Model() string { return c.model }

// Chat sends a conversation to Ollama and returns the response.
func (c *Client) Chat(ctx context.Context, system string, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	req := &chatRequest{
		Model:    c.model,
		Stream:   false,
		Messages: convertMessages(system, messages),
	}
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = json.RawMessage(`{"type":"object"}`)
		}
		req.Tools = append(req.Tools, apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
		return llm.ErrorResponse(code, c.language, strings.TrimSpace(string(respBody))), nil
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return convertResponse(&apiResp), nil
}

func convertMessages(system string, messages []llm.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, chatMessage{Role: "system", Content: system})
	}
	for _, msg := range messages {
		m := chatMessage{Role: msg.Role, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, apiToolCall{
				Function: apiFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, m)
	}
	return out
}

func convertResponse(resp *chatResponse) *llm.Response {
	out := &llm.Response{
		Content: resp.Message.Content,
		Usage: llm.Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
		},
	}

	for i, tc := range resp.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			// Ollama does not assign call ids.
			ID:        fmt.Sprintf("%s-%d", tc.Function.Name, i+1),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	if len(out.ToolCalls) > 0 {
		out.FinishReason = llm.FinishToolCalls
	} else {
		out.FinishReason = llm.FinishStop
	}
	return out
}
