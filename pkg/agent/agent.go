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

// Package agent implements the conversation engine: the turn loop that
// carries user messages through the LLM, dispatches tool calls, gates
// mutations behind confirmation, and keeps the durable history.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
	"github.com/weftdb/weft/pkg/adapter"
	"github.com/weftdb/weft/pkg/llm"
	"github.com/weftdb/weft/pkg/migration"
	"github.com/weftdb/weft/pkg/skill"
	"github.com/weftdb/weft/pkg/sqlanalyzer"
	"github.com/weftdb/weft/pkg/store"
	"github.com/weftdb/weft/pkg/tool"
)

// defaultMaxIterations bounds one turn's LLM round trips. The bound is
// lifted while a migration runs unattended.
const defaultMaxIterations = 30

// resumptionHint prefixes the next user message after an interrupt so
// the model can tell "resume" from "new request".
const resumptionHint = "[RESUMED AFTER INTERRUPT]"

// Pending operation kinds.
const (
	OpExecuteSQL            = "execute_sql"
	OpCreateIndex           = "create_index"
	OpExecuteSafeQueryForce = "execute_safe_query_forced"
)

// PendingOp is a gated operation awaiting user confirmation.
type PendingOp struct {
	Kind       string `json:"kind"`
	SQL        string `json:"sql"`
	Concurrent bool   `json:"concurrent,omitempty"`
}

// InterruptedState snapshots where an interrupt landed.
type InterruptedState struct {
	Iteration       int
	OriginalMessage string
}

// TurnResult is the outcome of one Chat call.
type TurnResult struct {
	// Content is the assistant's final text for the turn.
	Content string

	// Interrupted marks a turn stopped by RequestInterrupt; Content is
	// empty and the next Chat resumes with a hint.
	Interrupted bool

	// Pending is set when the turn paused for confirmation or form
	// input; the front-end resumes via ConfirmOperation or a new Chat.
	Pending *tool.Result

	// PendingOps mirrors the queue so the front-end can render it.
	PendingOps []PendingOp
}

// Config assembles an Agent.
type Config struct {
	Provider   llm.Provider
	Adapter    adapter.Adapter
	AdapterCfg adapter.Config
	Store      *store.Store
	SessionID  string
	Language   string // "en" or "zh"

	// Optional collaborators.
	Skills    *skill.Registry
	Registry  *tool.Registry // shared with the external-server manager
	Migration *migration.Handler

	MaxIterations int
}

// Agent is one conversation engine instance. Not re-entrant: at most
// one Chat may be in flight.
type Agent struct {
	provider   llm.Provider
	adapter    adapter.Adapter
	adapterCfg adapter.Config
	st         *store.Store
	sessionID  string
	language   string

	registry  *tool.Registry
	skills    *skill.Registry
	migration *migration.Handler
	analyzer  *sqlanalyzer.Analyzer
	compress  *Compressor
	localizer *Localizer

	history    []llm.Message
	pendingOps []PendingOp

	interruptRequested atomic.Bool
	interrupted        *InterruptedState
	autoExecMigration  bool

	maxIterations int

	// OnMigrationProgress observes migration item transitions.
	OnMigrationProgress migration.ProgressFunc
}

// New builds an agent and loads the session's durable history.
func New(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.Provider == nil || cfg.Store == nil || cfg.SessionID == "" {
		return nil, fmt.Errorf("agent: provider, store and session are required")
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Registry == nil {
		cfg.Registry = tool.NewRegistry()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}

	a := &Agent{
		provider:      cfg.Provider,
		adapter:       cfg.Adapter,
		adapterCfg:    cfg.AdapterCfg,
		st:            cfg.Store,
		sessionID:     cfg.SessionID,
		language:      cfg.Language,
		registry:      cfg.Registry,
		skills:        cfg.Skills,
		migration:     cfg.Migration,
		analyzer:      sqlanalyzer.New(sqlanalyzer.DefaultThresholds()),
		compress:      NewCompressor(),
		localizer:     NewLocalizer(cfg.Language),
		maxIterations: cfg.MaxIterations,
	}

	if err := a.loadHistory(ctx); err != nil {
		return nil, err
	}
	a.registerBuiltinTools()
	return a, nil
}

// Registry exposes the shared tool registry, for wiring the external
// tool-server manager.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// SetMigrationHandler attaches a migration handler after setup completes.
func (a *Agent) SetMigrationHandler(h *migration.Handler) {
	a.migration = h
	if h != nil && a.OnMigrationProgress != nil {
		h.OnProgress = a.OnMigrationProgress
	}
}

// SetAutoExecuteMigration toggles unattended migration mode. While set,
// execute_sql calls are force-confirmed and the iteration cap is lifted.
func (a *Agent) SetAutoExecuteMigration(v bool) { a.autoExecMigration = v }

// RequestInterrupt flips the cooperative interrupt flag. Safe to call
// from any goroutine; the engine observes it at loop heads and around
// tool calls.
func (a *Agent) RequestInterrupt() { a.interruptRequested.Store(true) }

// PendingOperations returns the current confirmation queue.
func (a *Agent) PendingOperations() []PendingOp {
	out := make([]PendingOp, len(a.pendingOps))
	copy(out, a.pendingOps)
	return out
}

// loadHistory reads the durable messages, prefixed by the latest
// context summary when one exists.
func (a *Agent) loadHistory(ctx context.Context) error {
	a.history = a.history[:0]

	if summary, err := a.st.LatestContextSummary(ctx, a.sessionID); err == nil {
		a.history = append(a.history, llm.Message{Role: "user", Content: summary.Summary})
	} else if err != store.ErrNotFound {
		return err
	}

	msgs, err := a.st.GetSessionMessages(ctx, a.sessionID)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		a.history = append(a.history, storedToLLM(msg))
	}
	return nil
}

// persist appends a message to both the durable store and the
// in-memory history.
func (a *Agent) persist(ctx context.Context, msg llm.Message) error {
	stored := llmToStored(a.sessionID, msg)
	if err := a.st.AddMessage(ctx, stored); err != nil {
		return err
	}
	a.history = append(a.history, msg)
	return nil
}

// Chat runs one turn. An interrupted turn returns
// TurnResult{Interrupted: true}; the next Chat call resumes with a
// hint prefix on the user message.
func (a *Agent) Chat(ctx context.Context, userMessage string) (*TurnResult, error) {
	a.interruptRequested.Store(false)
	a.pendingOps = a.pendingOps[:0]

	if a.interrupted != nil {
		userMessage = resumptionHint + " " + userMessage
		a.interrupted = nil
	}

	if err := a.persist(ctx, llm.Message{Role: "user", Content: userMessage}); err != nil {
		return nil, err
	}

	catalog := a.buildCatalog()
	systemPrompt := a.buildSystemPrompt()

	for iteration := 0; iteration < a.maxIterations || a.autoExecMigration; iteration++ {
		if a.interruptRequested.Load() {
			return a.snapshotInterrupt(iteration, userMessage), nil
		}

		if err := a.maybeCompress(ctx, systemPrompt); err != nil {
			log.Warn("context compression failed", zap.Error(err))
		}

		resp, err := a.provider.Chat(ctx, systemPrompt, a.history, catalog)
		if err != nil {
			return nil, fmt.Errorf("llm call: %w", err)
		}

		switch resp.FinishReason {
		case llm.FinishStop:
			if err := a.persist(ctx, llm.Message{Role: "assistant", Content: resp.Content}); err != nil {
				return nil, err
			}
			return &TurnResult{Content: resp.Content}, nil

		case llm.FinishError:
			return &TurnResult{Content: resp.Content}, nil

		case llm.FinishToolCalls:
			// Opaque per-call signatures ride along on the stored calls.
			if err := a.persist(ctx, llm.Message{
				Role:      "assistant",
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			}); err != nil {
				return nil, err
			}

			for _, call := range resp.ToolCalls {
				if a.interruptRequested.Load() {
					return a.snapshotInterrupt(iteration, userMessage), nil
				}

				result := a.dispatch(ctx, call)

				if err := a.persist(ctx, llm.Message{
					Role:       "tool",
					Content:    result.ToJSON(),
					ToolCallID: call.ID,
				}); err != nil {
					return nil, err
				}

				if result.IsPending() {
					return &TurnResult{
						Content:    resp.Content,
						Pending:    result,
						PendingOps: a.PendingOperations(),
					}, nil
				}
			}

		default:
			return nil, fmt.Errorf("unexpected finish reason %q", resp.FinishReason)
		}
	}

	return &TurnResult{Content: a.localizer.T("max_iterations_reached")}, nil
}

// snapshotInterrupt records where the interrupt landed.
func (a *Agent) snapshotInterrupt(iteration int, original string) *TurnResult {
	a.interrupted = &InterruptedState{Iteration: iteration, OriginalMessage: original}
	log.Info("turn interrupted",
		zap.String("session", a.sessionID),
		zap.Int("iteration", iteration))
	return &TurnResult{Interrupted: true}
}

// maybeCompress folds the oldest history into a summary when the
// context window is nearly full.
func (a *Agent) maybeCompress(ctx context.Context, systemPrompt string) error {
	if !a.compress.ShouldCompress(a.provider.Model(), systemPrompt, a.history) {
		return nil
	}

	splitAt := a.compress.SplitPoint(a.history)
	if splitAt <= 0 {
		return nil
	}
	prefix := a.history[:splitAt]
	tokensBefore := a.compress.CountHistory(a.history)

	summary := a.compress.Compress(ctx, a.provider, prefix, a.language)

	kept := a.history[splitAt:]
	compacted := append([]llm.Message{{Role: "user", Content: summary}}, kept...)

	if err := a.st.SaveContextSummary(ctx, &store.ContextSummary{
		SessionID:        a.sessionID,
		Summary:          summary,
		MessagesReplaced: splitAt,
		TokensBefore:     tokensBefore,
		TokensAfter:      a.compress.CountHistory(compacted),
	}); err != nil {
		return err
	}
	if err := a.st.DeleteOldestMessages(ctx, a.sessionID, splitAt); err != nil {
		return err
	}

	a.history = compacted

	log.Info("context compressed",
		zap.String("session", a.sessionID),
		zap.Int("messages", splitAt))
	return nil
}

// ConfirmOperation pops one queued operation and executes it with
// confirmation granted. The front-end resumes the turn with a new Chat
// carrying the execution feedback.
func (a *Agent) ConfirmOperation(ctx context.Context, index int) (*tool.Result, error) {
	if index < 0 || index >= len(a.pendingOps) {
		return nil, fmt.Errorf("no pending operation at index %d", index)
	}
	op := a.pendingOps[index]
	a.pendingOps = append(a.pendingOps[:index], a.pendingOps[index+1:]...)

	var res *adapter.Result
	start := time.Now()
	switch op.Kind {
	case OpExecuteSQL:
		res = a.adapter.ExecuteSQL(ctx, op.SQL, true)
	case OpCreateIndex:
		res = a.adapter.CreateIndex(ctx, op.SQL, op.Concurrent)
	case OpExecuteSafeQueryForce:
		res = a.adapter.ExecuteSafeQuery(ctx, op.SQL)
	default:
		return nil, fmt.Errorf("unknown pending operation kind %q", op.Kind)
	}

	out := adapterToTool(res)
	a.auditSQL(ctx, op.SQL, out, time.Since(start))
	return out, nil
}

// buildSystemPrompt renders the static prompt plus any skill context.
func (a *Agent) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(a.localizer.T("system_prompt"))

	if a.adapter != nil {
		fmt.Fprintf(&b, "\n\nConnected database engine: %s.", a.adapter.Kind())
	}
	if a.skills != nil {
		for _, s := range a.skills.List() {
			if s.Context != "" {
				b.WriteString("\n\n")
				b.WriteString(s.Context)
			}
		}
	}
	return b.String()
}

// storedToLLM converts a durable message to the wire shape.
func storedToLLM(msg *store.ChatMessage) llm.Message {
	out := llm.Message{
		ID:         msg.ID,
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		CreatedAt:  msg.CreatedAt,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:               call.ID,
			Name:             call.Name,
			Arguments:        parseArguments(call.Arguments),
			ThoughtSignature: call.ThoughtSignature,
		})
	}
	return out
}

// llmToStored converts a wire message for persistence, serializing
// arguments back to canonical JSON.
func llmToStored(sessionID string, msg llm.Message) *store.ChatMessage {
	out := &store.ChatMessage{
		SessionID:  sessionID,
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, store.StoredToolCall{
			ID:               call.ID,
			Name:             call.Name,
			Arguments:        call.ArgumentsJSON(),
			ThoughtSignature: call.ThoughtSignature,
		})
	}
	return out
}
