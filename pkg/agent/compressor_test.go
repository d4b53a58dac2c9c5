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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/pkg/llm"
)

func TestContextLimitPrefixMatch(t *testing.T) {
	assert.Equal(t, 200_000, ContextLimit("claude-3-5-sonnet-20241022"))
	assert.Equal(t, 128_000, ContextLimit("gpt-4o-mini"))
	assert.Equal(t, 128_000, ContextLimit("gpt-4-turbo-preview"))
	assert.Equal(t, 8_192, ContextLimit("gpt-4-0613"))
	assert.Equal(t, 1_000_000, ContextLimit("gemini-1.5-pro"))
	assert.Equal(t, genericContextLimit, ContextLimit("mystery-model"))
}

func TestThresholdClampsFraction(t *testing.T) {
	assert.Equal(t, 160_000, Threshold("claude-3-5-sonnet", 0.8))
	assert.Equal(t, 160_000, Threshold("claude-3-5-sonnet", -1))
	assert.Equal(t, 160_000, Threshold("claude-3-5-sonnet", 1.5))
	assert.Equal(t, 100_000, Threshold("claude-3-5-sonnet", 0.5))
}

func TestCountMessagesIncludesToolCalls(t *testing.T) {
	tc := GetTokenCounter()

	plain := []llm.Message{{Role: "user", Content: "hello"}}
	withCall := []llm.Message{{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{{
			Name:      "list_tables",
			Arguments: map[string]interface{}{"schema": "public"},
		}},
	}}

	assert.Greater(t, tc.CountMessages(plain), 10)
	assert.Greater(t, tc.CountMessages(withCall), 10)
}

func TestShouldCompressShortHistory(t *testing.T) {
	c := NewCompressor()
	history := []llm.Message{
		{Role: "user", Content: strings.Repeat("x", 100000)},
	}
	assert.False(t, c.ShouldCompress("gpt-4-0613", "", history),
		"histories at or below KeepRecent are never compressed")
}

func TestShouldCompressLongHistory(t *testing.T) {
	c := NewCompressor()
	var history []llm.Message
	for i := 0; i < 20; i++ {
		history = append(history, llm.Message{Role: "user", Content: strings.Repeat("word ", 1000)})
	}
	assert.True(t, c.ShouldCompress("gpt-4-0613", "", history))
}

func TestSplitPointKeepsToolPairsTogether(t *testing.T) {
	c := NewCompressor()
	c.KeepRecent = 2

	history := []llm.Message{
		{Role: "user", Content: "q1"},
		{Role: "assistant", ToolCalls: []llm.ToolCall{{ID: "c1", Name: "list_tables"}}},
		{Role: "tool", ToolCallID: "c1", Content: "{}"},
		{Role: "tool", ToolCallID: "c1", Content: "{}"},
		{Role: "assistant", Content: "a1"},
	}

	// Naive split at len-2 would land on a tool message; the boundary
	// must back up to the owning assistant message.
	split := c.SplitPoint(history)
	assert.Equal(t, 1, split)
	assert.Equal(t, "assistant", history[split].Role)
}

func TestSplitPointShortHistory(t *testing.T) {
	c := NewCompressor()
	assert.Equal(t, 0, c.SplitPoint([]llm.Message{{Role: "user", Content: "hi"}}))
}

// failingProvider always errors, to exercise the statistical fallback.
type failingProvider struct{}

func (failingProvider) Chat(ctx context.Context, system string, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	return nil, errors.New("provider down")
}
func (failingProvider) Name() string  { return "failing" }
func (failingProvider) Model() string { return "none" }

func TestCompressStatisticalFallback(t *testing.T) {
	c := NewCompressor()
	prefix := []llm.Message{
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "tool", Content: "{}"},
		{Role: "user", Content: "q2"},
	}

	summary := c.Compress(context.Background(), failingProvider{}, prefix, "en")
	require.True(t, strings.HasPrefix(summary, SummaryMarker))
	assert.Contains(t, summary, "2 user / 1 assistant / 1 tool messages compressed")
}

func TestCompressUsesProviderSummary(t *testing.T) {
	c := NewCompressor()
	provider := &scriptedProvider{responses: []*llm.Response{
		{FinishReason: llm.FinishStop, Content: "User explored the orders table."},
	}}

	summary := c.Compress(context.Background(), provider, []llm.Message{
		{Role: "user", Content: "show me orders"},
	}, "en")
	assert.Equal(t, SummaryMarker+" User explored the orders table.", summary)

	// The rendered transcript reaches the provider.
	require.Len(t, provider.seen, 1)
	assert.Contains(t, provider.seen[0][0].Content, "show me orders")
}
