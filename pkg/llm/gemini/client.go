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
// Package gemini implements the llm.Provider contract for Google's
// generateContent API.
//
// Gemini attaches an opaque thoughtSignature to function-call parts and
// requires it to be echoed back on later turns. The signature travels on
// llm.ToolCall.ThoughtSignature and is round-tripped verbatim.
package gemini

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
	// DefaultModel is the default Gemini model.
	DefaultModel = "gemini-1.5-pro"
	// DefaultBaseURL is the default API base.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 120 * time.Second
)

// Client implements llm.Provider for Gemini.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	language   string
	httpClient *http.Client
}

// Config holds configuration for the Gemini client.
type Config struct {
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
	Language string
}

// NewClient creates a new Gemini client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		if envModel := os.Getenv("GEMINI_DEFAULT_MODEL"); envModel != "" {
			config.Model = envModel
		} else {
			config.Model = DefaultModel
		}
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Language == "" {
		config.Language = "en"
	}

	return &Client{
		apiKey:     config.APIKey,
		model:      config.Model,
		baseURL:    config.BaseURL,
		language:   config.Language,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider kind.
func (c *Client) Name() string { return "gemini" }

// Model returns the model identifier.
func (c *Client) Model() string { return c.model }

// Chat sends a conversation to Gemini and returns the response.
func (c *Client) Chat(ctx context.Context, system string, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	req := &generateRequest{
		Contents: convertMessages(messages),
	}
	if system != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	if len(tools) > 0 {
		req.Tools = []toolDecls{{FunctionDeclarations: convertTools(tools)}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
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
		var apiErr errorResponse
		detail := ""
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			detail = apiErr.Error.Message
		}
		return llm.ErrorResponse(code, c.language, detail), nil
	}

	var apiResp generateResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return convertResponse(&apiResp)
}

func convertMessages(messages []llm.Message) []content {
	var out []content
	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			var parts []part
			if msg.Content != "" {
				parts = append(parts, part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, part{
					FunctionCall:     &functionCall{Name: tc.Name, Args: tc.Arguments},
					ThoughtSignature: tc.ThoughtSignature,
				})
			}
			out = append(out, content{Role: "model", Parts: parts})
		case "tool":
			out = append(out, content{Role: "user", Parts: []part{{
				FunctionResponse: &functionResponse{
					// Gemini matches responses by function name; the
					// engine stores the name alongside the call id.
					Name:     msg.ToolCallID,
					Response: map[string]interface{}{"result": msg.Content},
				},
			}}})
		default:
			out = append(out, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		}
	}
	return out
}

func convertTools(tools []llm.ToolDefinition) []functionDecl {
	out := make([]functionDecl, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, functionDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return out
}

func convertResponse(resp *generateResponse) (*llm.Response, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty candidates in response")
	}
	cand := resp.Candidates[0]

	out := &llm.Response{
		Usage: llm.Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		},
	}

	callSeq := 0
	for _, p := range cand.Content.Parts {
		if p.Text != "" {
			out.Content += p.Text
		}
		if p.FunctionCall != nil {
			callSeq++
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				// Gemini does not assign call ids; synthesize stable ones
				// from the function name and position.
				ID:               fmt.Sprintf("%s-%d", p.FunctionCall.Name, callSeq),
				Name:             p.FunctionCall.Name,
				Arguments:        p.FunctionCall.Args,
				ThoughtSignature: p.ThoughtSignature,
			})
		}
	}

	if len(out.ToolCalls) > 0 {
		out.FinishReason = llm.FinishToolCalls
	} else {
		out.FinishReason = llm.FinishStop
	}
	return out, nil
}
