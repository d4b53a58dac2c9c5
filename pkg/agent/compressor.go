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
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
	"github.com/weftdb/weft/pkg/llm"
)

// SummaryMarker prefixes every compression summary so the model can
// tell summarized context from live conversation.
const SummaryMarker = "[CONTEXT SUMMARY]"

// defaultKeepRecent is how many trailing messages survive compression.
const defaultKeepRecent = 10

// Compressor folds the oldest part of a conversation into a summary
// when the context window fills up.
type Compressor struct {
	counter    *TokenCounter
	KeepRecent int
	Fraction   float64
}

// NewCompressor creates a compressor with the default knobs.
func NewCompressor() *Compressor {
	return &Compressor{
		counter:    GetTokenCounter(),
		KeepRecent: defaultKeepRecent,
		Fraction:   0.8,
	}
}

// ShouldCompress reports whether system prompt plus history exceed the
// model's compression threshold.
func (c *Compressor) ShouldCompress(model, systemPrompt string, history []llm.Message) bool {
	if len(history) <= c.KeepRecent {
		return false
	}
	used := c.counter.CountTokens(systemPrompt) + c.counter.CountMessages(history)
	return used >= Threshold(model, c.Fraction)
}

// CountHistory returns the token footprint of a message window.
func (c *Compressor) CountHistory(history []llm.Message) int {
	return c.counter.CountMessages(history)
}

// SplitPoint returns the boundary index: history[:idx] is summarized,
// history[idx:] is kept. The boundary walks backwards so it never
// separates an assistant's tool calls from their tool results.
func (c *Compressor) SplitPoint(history []llm.Message) int {
	idx := len(history) - c.KeepRecent
	if idx <= 0 {
		return 0
	}
	for idx > 0 && history[idx].Role == "tool" {
		idx--
	}
	return idx
}

// Compress summarizes history[:splitPoint] through the provider. On any
// LLM failure it degrades to a statistical summary so the prefix is
// never lost. The returned summary carries the marker prefix.
func (c *Compressor) Compress(ctx context.Context, provider llm.Provider, prefix []llm.Message, language string) string {
	var b strings.Builder
	for _, msg := range prefix {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		if msg.Content != "" {
			b.WriteString(msg.Content)
		}
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(&b, " [called %s(%s)]", call.Name, call.ArgumentsJSON())
		}
		b.WriteString("\n")
	}

	instruction := "Summarize the following database conversation concisely, preserving table names, executed SQL, key findings and unresolved questions. Respond in English."
	if language == "zh" {
		instruction = "请简洁总结以下数据库对话，保留表名、已执行的 SQL、关键结论和未解决的问题。请用中文回答。"
	}

	resp, err := provider.Chat(ctx, instruction, []llm.Message{
		{Role: "user", Content: b.String()},
	}, nil)
	if err != nil || resp.FinishReason == llm.FinishError || strings.TrimSpace(resp.Content) == "" {
		if err != nil {
			log.Warn("context summarization failed, using statistical fallback", zap.Error(err))
		}
		return SummaryMarker + " " + statisticalSummary(prefix)
	}
	return SummaryMarker + " " + strings.TrimSpace(resp.Content)
}

// statisticalSummary is the degraded form: message counts only.
func statisticalSummary(prefix []llm.Message) string {
	var users, assistants, tools int
	for _, msg := range prefix {
		switch msg.Role {
		case "user":
			users++
		case "assistant":
			assistants++
		case "tool":
			tools++
		}
	}
	return fmt.Sprintf("%d user / %d assistant / %d tool messages compressed", users, assistants, tools)
}
