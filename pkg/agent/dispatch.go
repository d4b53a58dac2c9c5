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
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
	"github.com/weftdb/weft/pkg/adapter"
	"github.com/weftdb/weft/pkg/llm"
	"github.com/weftdb/weft/pkg/store"
	"github.com/weftdb/weft/pkg/tool"
)

// sqlAuditTools emit SQL audit records instead of tool-call records.
var sqlAuditTools = map[string]bool{
	"execute_sql":        true,
	"execute_safe_query": true,
	"run_explain":        true,
	"create_index":       true,
}

// dispatch routes one tool call through the registry and audits the
// outcome. Failures become error results, never panics or raises.
func (a *Agent) dispatch(ctx context.Context, call llm.ToolCall) *tool.Result {
	def, ok := a.registry.Get(call.Name)
	if !ok {
		res := tool.Errorf("unknown tool: " + call.Name)
		a.auditTool(ctx, call.Name, call.Arguments, res)
		return res
	}

	if call.Arguments == nil {
		call.Arguments = map[string]interface{}{}
	}
	if err := tool.ValidateArgs(def, call.Arguments); err != nil {
		res := tool.Errorf(err.Error())
		a.auditTool(ctx, call.Name, call.Arguments, res)
		return res
	}

	start := time.Now()
	res := def.Handler(ctx, call.Arguments)
	if res == nil {
		res = tool.Errorf("tool returned no result: " + call.Name)
	}
	if res.ExecutionTimeMs == 0 {
		res.ExecutionTimeMs = time.Since(start).Milliseconds()
	}

	if sqlAuditTools[call.Name] {
		sql, _ := call.Arguments["sql"].(string)
		a.auditSQL(ctx, sql, res, time.Duration(res.ExecutionTimeMs)*time.Millisecond)
	} else {
		a.auditTool(ctx, call.Name, call.Arguments, res)
	}
	return res
}

// auditSQL records one SQL execution, successful or not.
func (a *Agent) auditSQL(ctx context.Context, sql string, res *tool.Result, elapsed time.Duration) {
	rec := &store.AuditRecord{
		SessionID:       a.sessionID,
		ConnectionID:    a.adapterCfg.Kind,
		Category:        store.AuditSQLExecute,
		Action:          "execute",
		SQLText:         sql,
		ResultStatus:    auditStatus(res.Status),
		ResultSummary:   res.Message,
		AffectedRows:    res.AffectedRows,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	if err := a.st.AppendAudit(ctx, rec, nil); err != nil {
		log.Warn("audit write failed", zap.Error(err))
	}
}

// auditTool records one non-SQL tool invocation with masked parameters.
func (a *Agent) auditTool(ctx context.Context, name string, args map[string]interface{}, res *tool.Result) {
	rec := &store.AuditRecord{
		SessionID:       a.sessionID,
		Category:        store.AuditToolCall,
		Action:          name,
		ResultStatus:    auditStatus(res.Status),
		ResultSummary:   res.Message,
		ExecutionTimeMs: res.ExecutionTimeMs,
	}
	if err := a.st.AppendAudit(ctx, rec, args); err != nil {
		log.Warn("audit write failed", zap.Error(err))
	}
}

// auditConfigChange records connection-level changes such as
// switch_database.
func (a *Agent) auditConfigChange(ctx context.Context, action, target string) {
	rec := &store.AuditRecord{
		SessionID:    a.sessionID,
		Category:     store.AuditConfigChange,
		Action:       action,
		TargetType:   "database",
		TargetName:   target,
		ResultStatus: store.AuditSuccess,
	}
	if err := a.st.AppendAudit(ctx, rec, nil); err != nil {
		log.Warn("audit write failed", zap.Error(err))
	}
}

// auditStatus folds tool statuses into the audit result vocabulary.
func auditStatus(s tool.Status) string {
	switch s {
	case tool.StatusSuccess:
		return store.AuditSuccess
	case tool.StatusError:
		return store.AuditError
	}
	return store.AuditPending
}

// adapterToTool converts an adapter result into a tool result. The
// status strings are shared between the two vocabularies.
func adapterToTool(res *adapter.Result) *tool.Result {
	out := &tool.Result{
		Status:          tool.Status(res.Status),
		Message:         res.Message,
		Data:            res.Data,
		AffectedRows:    res.AffectedRows,
		ExecutionTimeMs: res.ExecutionTimeMs,
	}
	if res.Note != "" {
		if out.Data == nil {
			out.Data = map[string]interface{}{}
		}
		out.Data["note"] = res.Note
	}
	return out
}

// parseArguments decodes a stored argument JSON blob.
func parseArguments(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil
	}
	return args
}

// Argument accessors. LLMs send JSON, so numbers arrive as float64.

func argString(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func argBool(args map[string]interface{}, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func argInt(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}
