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

package agent

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/weftdb/weft/pkg/llm"
)

// TokenCounter counts tokens for context management. Uses tiktoken with
// cl100k_base encoding, a good approximation across providers; falls
// back to len/4 estimation when the encoder cannot load.
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

var (
	globalTokenCounter *TokenCounter
	counterInitOnce    sync.Once
)

// GetTokenCounter returns the singleton counter.
func GetTokenCounter() *TokenCounter {
	counterInitOnce.Do(func() {
		tkm, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			globalTokenCounter = &TokenCounter{}
			return
		}
		globalTokenCounter = &TokenCounter{encoder: tkm}
	})
	return globalTokenCounter
}

// CountTokens returns the token count for one text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.encoder == nil {
		return len(text) / 4
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil))
}

// CountMessages estimates the token count of a message slice, including
// per-message structural overhead.
func (tc *TokenCounter) CountMessages(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		// Role plus formatting overhead.
		total += 10
		total += tc.CountTokens(msg.Content)
		for _, call := range msg.ToolCalls {
			total += tc.CountTokens(call.Name)
			total += tc.CountTokens(call.ArgumentsJSON())
		}
	}
	return total
}

// contextLimits maps model id prefixes to context windows. Longest
// matching prefix wins.
var contextLimits = []struct {
	prefix string
	limit  int
}{
	{"claude", 200_000},
	{"gpt-4o", 128_000},
	{"gpt-4-turbo", 128_000},
	{"gpt-4", 8_192},
	{"deepseek", 64_000},
	{"gemini-1.5", 1_000_000},
	{"gemini", 1_000_000},
	{"qwen", 32_000},
}

// genericContextLimit applies when no model prefix matches.
const genericContextLimit = 8_000

// ContextLimit returns the context window for a model id.
func ContextLimit(model string) int {
	lower := strings.ToLower(model)
	best := 0
	limit := genericContextLimit
	for _, entry := range contextLimits {
		if strings.HasPrefix(lower, entry.prefix) && len(entry.prefix) > best {
			best = len(entry.prefix)
			limit = entry.limit
		}
	}
	return limit
}

// Threshold returns the compression trigger point for a model, as a
// fraction of its context window.
func Threshold(model string, fraction float64) int {
	if fraction <= 0 || fraction > 1 {
		fraction = 0.8
	}
	return int(float64(ContextLimit(model)) * fraction)
}
