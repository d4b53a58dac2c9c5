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
// Package factory builds llm.Provider clients from stored provider profiles.
package factory

import (
	"fmt"
	"strings"

	"github.com/weftdb/weft/pkg/llm"
	"github.com/weftdb/weft/pkg/llm/anthropic"
	"github.com/weftdb/weft/pkg/llm/gemini"
	"github.com/weftdb/weft/pkg/llm/ollama"
	"github.com/weftdb/weft/pkg/llm/openai"
)

// Known provider kinds with dedicated wire formats or default endpoints.
const (
	KindClaude   = "claude"
	KindOpenAI   = "openai"
	KindDeepSeek = "deepseek"
	KindQwen     = "qwen"
	KindGemini   = "gemini"
	KindOllama   = "ollama"
)

const (
	deepseekEndpoint = "https://api.deepseek.com/v1/chat/completions"
	qwenEndpoint     = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"

	deepseekDefaultModel = "deepseek-chat"
	qwenDefaultModel     = "qwen-max"
)

// Options is the provider-neutral profile resolved from storage.
type Options struct {
	Kind     string
	APIKey   string
	Model    string
	BaseURL  string // Optional endpoint override; required for unknown kinds
	Language string
}

// New builds a Provider for the given profile. Unknown kinds are treated as
// OpenAI-compatible gateways and require a BaseURL.
func New(opts Options) (llm.Provider, error) {
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	switch kind {
	case KindClaude, "anthropic":
		return anthropic.NewClient(anthropic.Config{
			APIKey:   opts.APIKey,
			Model:    opts.Model,
			Endpoint: opts.BaseURL,
			Language: opts.Language,
		}), nil

	case KindOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:   opts.APIKey,
			Kind:     KindOpenAI,
			Model:    opts.Model,
			Endpoint: opts.BaseURL,
			Language: opts.Language,
		}), nil

	case KindDeepSeek:
		model := opts.Model
		if model == "" {
			model = deepseekDefaultModel
		}
		endpoint := opts.BaseURL
		if endpoint == "" {
			endpoint = deepseekEndpoint
		}
		return openai.NewClient(openai.Config{
			APIKey:   opts.APIKey,
			Kind:     KindDeepSeek,
			Model:    model,
			Endpoint: endpoint,
			Language: opts.Language,
		}), nil

	case KindQwen:
		model := opts.Model
		if model == "" {
			model = qwenDefaultModel
		}
		endpoint := opts.BaseURL
		if endpoint == "" {
			endpoint = qwenEndpoint
		}
		return openai.NewClient(openai.Config{
			APIKey:   opts.APIKey,
			Kind:     KindQwen,
			Model:    model,
			Endpoint: endpoint,
			Language: opts.Language,
		}), nil

	case KindGemini:
		return gemini.NewClient(gemini.Config{
			APIKey:   opts.APIKey,
			Model:    opts.Model,
			BaseURL:  opts.BaseURL,
			Language: opts.Language,
		}), nil

	case KindOllama:
		return ollama.NewClient(ollama.Config{
			Model:    opts.Model,
			BaseURL:  opts.BaseURL,
			Language: opts.Language,
		}), nil

	case "":
		return nil, fmt.Errorf("provider kind is required")

	default:
		// Any other kind is assumed to speak the OpenAI wire format.
		if opts.BaseURL == "" {
			return nil, fmt.Errorf("provider kind %q requires an explicit base URL", opts.Kind)
		}
		return openai.NewClient(openai.Config{
			APIKey:   opts.APIKey,
			Kind:     kind,
			Model:    opts.Model,
			Endpoint: opts.BaseURL,
			Language: opts.Language,
		}), nil
	}
}
