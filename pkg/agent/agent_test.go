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
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/pkg/adapter"
	"github.com/weftdb/weft/pkg/llm"
	"github.com/weftdb/weft/pkg/migration"
	"github.com/weftdb/weft/pkg/store"
	"github.com/weftdb/weft/pkg/tool"
)

// scriptedProvider replays canned responses in order. Once the script
// runs out it answers with a plain stop.
type scriptedProvider struct {
	responses []*llm.Response
	calls     int

	systems []string
	seen    [][]llm.Message

	// onChat runs before each response is returned, for interrupt tests.
	onChat func()
}

func (p *scriptedProvider) Chat(ctx context.Context, system string, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	p.systems = append(p.systems, system)
	p.seen = append(p.seen, append([]llm.Message(nil), messages...))
	if p.onChat != nil {
		p.onChat()
	}
	if p.calls >= len(p.responses) {
		return &llm.Response{FinishReason: llm.FinishStop, Content: "done"}, nil
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func (p *scriptedProvider) Name() string  { return "claude" }
func (p *scriptedProvider) Model() string { return "claude-3-5-sonnet" }

// stubDB is a scriptable in-memory engine.
type stubDB struct {
	kind string

	executed  []string
	confirmed []bool
	indexed   []string

	explainPlan string
	closed      bool
}

func (d *stubDB) Kind() string {
	if d.kind == "" {
		return "postgresql"
	}
	return d.kind
}

func ok(data map[string]interface{}) *adapter.Result {
	return adapter.Success(data)
}

func (d *stubDB) GetDBInfo(ctx context.Context) *adapter.Result { return ok(nil) }
func (d *stubDB) ListTables(ctx context.Context, schema string) *adapter.Result {
	return ok(map[string]interface{}{"tables": []string{"orders", "users"}})
}
func (d *stubDB) DescribeTable(ctx context.Context, table, schema string) *adapter.Result {
	return ok(map[string]interface{}{"table": table})
}
func (d *stubDB) GetSampleData(ctx context.Context, table, schema string, limit int) *adapter.Result {
	return ok(map[string]interface{}{"limit": limit})
}
func (d *stubDB) ListDatabases(ctx context.Context) *adapter.Result { return ok(nil) }

func (d *stubDB) ExecuteSafeQuery(ctx context.Context, sql string) *adapter.Result {
	d.executed = append(d.executed, sql)
	return ok(map[string]interface{}{"rows": []interface{}{}})
}

func (d *stubDB) ExecuteSQL(ctx context.Context, sql string, confirmed bool) *adapter.Result {
	if isMutation(sql) && !confirmed {
		return adapter.PendingConfirmation(sql)
	}
	d.executed = append(d.executed, sql)
	d.confirmed = append(d.confirmed, confirmed)
	return &adapter.Result{Status: adapter.StatusSuccess, AffectedRows: 1}
}

func (d *stubDB) RunExplain(ctx context.Context, sql string, analyze bool) *adapter.Result {
	return ok(map[string]interface{}{"plan": d.explainPlan})
}

func (d *stubDB) CheckQueryPerformance(ctx context.Context, sql string) *adapter.Result {
	return ok(map[string]interface{}{"should_confirm": false})
}

func (d *stubDB) CreateIndex(ctx context.Context, sql string, concurrent bool) *adapter.Result {
	d.indexed = append(d.indexed, sql)
	return ok(nil)
}

func (d *stubDB) AnalyzeTable(ctx context.Context, table, schema string) *adapter.Result {
	return ok(nil)
}
func (d *stubDB) CheckIndexUsage(ctx context.Context, table, schema string) *adapter.Result {
	return ok(nil)
}
func (d *stubDB) GetTableStats(ctx context.Context, table, schema string) *adapter.Result {
	return ok(nil)
}
func (d *stubDB) GetRunningQueries(ctx context.Context) *adapter.Result { return ok(nil) }
func (d *stubDB) IdentifySlowQueries(ctx context.Context, minMs, limit int) *adapter.Result {
	return ok(nil)
}
func (d *stubDB) GetAllObjects(ctx context.Context, schema string, objectTypes []string) *adapter.Result {
	return ok(map[string]interface{}{"schema": schema, "objects": map[string]interface{}{}})
}
func (d *stubDB) GetObjectDDL(ctx context.Context, objectType, name, schema string) *adapter.Result {
	return ok(map[string]interface{}{"ddl": ""})
}
func (d *stubDB) GetObjectDependencies(ctx context.Context, schema string) *adapter.Result {
	return ok(nil)
}
func (d *stubDB) GetForeignKeyDependencies(ctx context.Context, schema string) *adapter.Result {
	return ok(map[string]interface{}{"edges": []interface{}{}, "table_order": []interface{}{}})
}
func (d *stubDB) Close() error {
	d.closed = true
	return nil
}

func isMutation(sql string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	for _, prefix := range []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

func toolCallResponse(name string, args map[string]interface{}) *llm.Response {
	return &llm.Response{
		FinishReason: llm.FinishToolCalls,
		ToolCalls:    []llm.ToolCall{{ID: "call_1", Name: name, Arguments: args}},
	}
}

func newTestAgent(t *testing.T, provider llm.Provider, db *stubDB) (*Agent, *store.Store, string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "weft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	session, err := st.CreateSession(ctx, "test", "", "")
	require.NoError(t, err)

	a, err := New(ctx, Config{
		Provider:   provider,
		Adapter:    db,
		AdapterCfg: adapter.Config{Kind: db.Kind(), Database: "app"},
		Store:      st,
		SessionID:  session.ID,
	})
	require.NoError(t, err)
	return a, st, session.ID
}

func TestChatPlainAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{FinishReason: llm.FinishStop, Content: "Two tables: orders and users."},
	}}
	a, st, sessionID := newTestAgent(t, provider, &stubDB{})

	result, err := a.Chat(context.Background(), "what tables exist?")
	require.NoError(t, err)
	assert.Equal(t, "Two tables: orders and users.", result.Content)
	assert.False(t, result.Interrupted)
	assert.Nil(t, result.Pending)

	msgs, err := st.GetSessionMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestChatToolCallRoundTrip(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("list_tables", map[string]interface{}{"schema": "public"}),
		{FinishReason: llm.FinishStop, Content: "orders and users"},
	}}
	a, st, sessionID := newTestAgent(t, provider, &stubDB{})

	result, err := a.Chat(context.Background(), "list tables")
	require.NoError(t, err)
	assert.Equal(t, "orders and users", result.Content)

	msgs, err := st.GetSessionMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 4) // user, assistant tool call, tool result, assistant

	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Contains(t, msgs[2].Content, "success")
}

func TestMutationRequiresConfirmation(t *testing.T) {
	db := &stubDB{}
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("execute_sql", map[string]interface{}{"sql": "DELETE FROM orders"}),
	}}
	a, _, _ := newTestAgent(t, provider, db)

	result, err := a.Chat(context.Background(), "clear the orders table")
	require.NoError(t, err)
	require.NotNil(t, result.Pending)
	assert.Equal(t, tool.StatusPendingConfirmation, result.Pending.Status)
	require.Len(t, result.PendingOps, 1)
	assert.Equal(t, OpExecuteSQL, result.PendingOps[0].Kind)
	assert.Empty(t, db.executed)

	confirmed, err := a.ConfirmOperation(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, tool.StatusSuccess, confirmed.Status)
	require.Len(t, db.executed, 1)
	assert.Equal(t, "DELETE FROM orders", db.executed[0])
	assert.True(t, db.confirmed[0])
	assert.Empty(t, a.PendingOperations())
}

func TestConfirmOperationBadIndex(t *testing.T) {
	a, _, _ := newTestAgent(t, &scriptedProvider{}, &stubDB{})
	_, err := a.ConfirmOperation(context.Background(), 0)
	assert.Error(t, err)
}

func TestAutoExecuteForcesConfirmation(t *testing.T) {
	db := &stubDB{}
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("execute_sql", map[string]interface{}{"sql": "CREATE TABLE t (id INT)"}),
		{FinishReason: llm.FinishStop, Content: "created"},
	}}
	a, _, _ := newTestAgent(t, provider, db)
	a.SetAutoExecuteMigration(true)

	result, err := a.Chat(context.Background(), "run the migration")
	require.NoError(t, err)
	assert.Nil(t, result.Pending)
	require.Len(t, db.executed, 1)
	assert.True(t, db.confirmed[0])
}

func TestStoredAutoExecuteOptionActivates(t *testing.T) {
	db := &stubDB{}
	target := &stubDB{}
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("get_migration_status", map[string]interface{}{"task_id": "task-auto"}),
		toolCallResponse("execute_sql", map[string]interface{}{"sql": "CREATE TABLE users (id INT)"}),
		{FinishReason: llm.FinishStop, Content: "migrated"},
	}}
	a, st, _ := newTestAgent(t, provider, db)
	a.SetMigrationHandler(migration.NewHandler(st, db, target))

	options, _ := json.Marshal(migration.Options{AutoExecute: true})
	require.NoError(t, st.CreateMigrationTask(context.Background(), &store.MigrationTask{
		ID:         "task-auto",
		Name:       "auto",
		SourceKind: "mysql",
		TargetKind: "postgresql",
		Options:    string(options),
	}))

	result, err := a.Chat(context.Background(), "continue the migration")
	require.NoError(t, err)
	assert.Nil(t, result.Pending)
	require.Len(t, db.executed, 1)
	assert.True(t, db.confirmed[0])
}

func TestCompressionRecordsTokenCounts(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{FinishReason: llm.FinishStop, Content: "earlier we joined orders and users on user_id"},
	}}
	a, st, sessionID := newTestAgent(t, provider, &stubDB{})
	a.compress.KeepRecent = 2
	a.compress.Fraction = 0.0001

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msg := llm.Message{Role: role, Content: strings.Repeat("orders and users joined on user_id ", 4)}
		require.NoError(t, a.persist(ctx, msg))
	}

	require.NoError(t, a.maybeCompress(ctx, "You are a database assistant."))

	sum, err := st.LatestContextSummary(ctx, sessionID)
	require.NoError(t, err)
	assert.Greater(t, sum.TokensBefore, 0)
	assert.Greater(t, sum.TokensAfter, 0)
	assert.Greater(t, sum.TokensBefore, sum.TokensAfter)
}

func TestCreateIndexQueuesConfirmation(t *testing.T) {
	db := &stubDB{}
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("create_index", map[string]interface{}{
			"sql":        "CREATE INDEX idx_orders_user ON orders (user_id)",
			"concurrent": true,
		}),
	}}
	a, _, _ := newTestAgent(t, provider, db)

	result, err := a.Chat(context.Background(), "index user_id")
	require.NoError(t, err)
	require.NotNil(t, result.Pending)
	assert.Equal(t, tool.StatusPendingConfirmation, result.Pending.Status)
	assert.Empty(t, db.indexed)

	confirmed, err := a.ConfirmOperation(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, tool.StatusSuccess, confirmed.Status)
	require.Len(t, db.indexed, 1)
}

func TestSafeQueryPerformanceGate(t *testing.T) {
	db := &stubDB{
		explainPlan: "Seq Scan on orders  (cost=0.00..4582.00 rows=250000 width=8)\n",
	}
	sql := "SELECT region, count(*) FROM orders GROUP BY region"
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("execute_safe_query", map[string]interface{}{"sql": sql}),
	}}
	a, _, _ := newTestAgent(t, provider, db)

	result, err := a.Chat(context.Background(), "orders per region")
	require.NoError(t, err)
	require.NotNil(t, result.Pending)
	assert.Equal(t, tool.StatusPendingPerformance, result.Pending.Status)
	assert.Empty(t, db.executed)

	confirmed, err := a.ConfirmOperation(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, tool.StatusSuccess, confirmed.Status)
	require.Len(t, db.executed, 1)
	assert.Equal(t, sql, db.executed[0])
}

func TestSafeQueryCheapPlanRunsDirectly(t *testing.T) {
	db := &stubDB{
		explainPlan: "Index Scan using orders_pkey on orders  (cost=0.29..8.31 rows=1 width=8)\n",
	}
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("execute_safe_query", map[string]interface{}{
			"sql": "SELECT count(*) FROM orders",
		}),
		{FinishReason: llm.FinishStop, Content: "42"},
	}}
	a, _, _ := newTestAgent(t, provider, db)

	result, err := a.Chat(context.Background(), "how many orders?")
	require.NoError(t, err)
	assert.Nil(t, result.Pending)
	require.Len(t, db.executed, 1)
}

func TestInterruptAndResume(t *testing.T) {
	var a *Agent
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("list_tables", nil),
		{FinishReason: llm.FinishStop, Content: "resumed fine"},
	}}
	provider.onChat = func() {
		if provider.calls == 0 {
			a.RequestInterrupt()
		}
	}

	db := &stubDB{}
	a, _, _ = newTestAgent(t, provider, db)

	result, err := a.Chat(context.Background(), "list everything")
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	assert.Empty(t, result.Content)

	result, err = a.Chat(context.Background(), "keep going")
	require.NoError(t, err)
	assert.False(t, result.Interrupted)
	assert.Equal(t, "resumed fine", result.Content)

	last := provider.seen[len(provider.seen)-1]
	var resumed bool
	for _, msg := range last {
		if msg.Role == "user" && strings.HasPrefix(msg.Content, resumptionHint) {
			resumed = true
		}
	}
	assert.True(t, resumed, "resumed user message carries the hint prefix")
}

func TestIterationLimit(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "weft.db"))
	require.NoError(t, err)
	defer st.Close()
	session, err := st.CreateSession(ctx, "test", "", "")
	require.NoError(t, err)

	// Every response asks for another tool call, forever.
	provider := &scriptedProvider{}
	for i := 0; i < 10; i++ {
		provider.responses = append(provider.responses, toolCallResponse("list_tables", nil))
	}

	a, err := New(ctx, Config{
		Provider:      provider,
		Adapter:       &stubDB{},
		Store:         st,
		SessionID:     session.ID,
		MaxIterations: 3,
	})
	require.NoError(t, err)

	result, err := a.Chat(ctx, "loop")
	require.NoError(t, err)
	assert.Equal(t, 3, provider.calls)
	assert.Contains(t, result.Content, "iteration limit")
}

func TestSwitchDatabaseUnknownKindFails(t *testing.T) {
	db := &stubDB{kind: "postgresql"}
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("switch_database", map[string]interface{}{"database": "analytics"}),
		{FinishReason: llm.FinishStop, Content: "could not switch"},
	}}
	a, _, sessionID := newTestAgent(t, provider, db)

	// The stub's config kind is not backed by a reachable server, so the
	// reconnect fails and the original adapter stays attached.
	a.adapterCfg.Kind = "unsupported"
	result, err := a.Chat(context.Background(), "switch to analytics")
	require.NoError(t, err)
	assert.Equal(t, "could not switch", result.Content)
	assert.False(t, db.closed)

	msgs, err := a.st.GetSessionMessages(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Contains(t, msgs[2].Content, "error")
}

func TestUnknownToolIsReportedNotFatal(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("no_such_tool", nil),
		{FinishReason: llm.FinishStop, Content: "sorry"},
	}}
	a, _, sessionID := newTestAgent(t, provider, &stubDB{})

	result, err := a.Chat(context.Background(), "do something odd")
	require.NoError(t, err)
	assert.Equal(t, "sorry", result.Content)

	msgs, err := a.st.GetSessionMessages(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Contains(t, msgs[2].Content, "unknown tool")
}

func TestRequestUserInputPausesTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("request_user_input", map[string]interface{}{
			"prompt": "which schema?",
		}),
	}}
	a, _, _ := newTestAgent(t, provider, &stubDB{})

	result, err := a.Chat(context.Background(), "describe my data")
	require.NoError(t, err)
	require.NotNil(t, result.Pending)
	assert.Equal(t, tool.StatusFormInputRequested, result.Pending.Status)
	assert.Equal(t, "which schema?", result.Pending.Data["prompt"])
}

func TestMigrationToolsRequireSetup(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolCallResponse("execute_migration_batch", map[string]interface{}{"task_id": "t1"}),
		{FinishReason: llm.FinishStop, Content: "needs setup"},
	}}
	a, _, sessionID := newTestAgent(t, provider, &stubDB{})

	_, err := a.Chat(context.Background(), "run the migration")
	require.NoError(t, err)

	msgs, err := a.st.GetSessionMessages(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Contains(t, msgs[2].Content, "request_migration_setup")
}

func TestThoughtSignatureSurvivesReload(t *testing.T) {
	sig := []byte("opaque-provider-blob")
	provider := &scriptedProvider{responses: []*llm.Response{
		{
			FinishReason: llm.FinishToolCalls,
			ToolCalls: []llm.ToolCall{{
				ID:               "call_1",
				Name:             "list_tables",
				Arguments:        map[string]interface{}{"schema": "public"},
				ThoughtSignature: sig,
			}},
		},
		{FinishReason: llm.FinishStop, Content: "done"},
	}}
	db := &stubDB{}
	a, st, sessionID := newTestAgent(t, provider, db)

	_, err := a.Chat(context.Background(), "list tables")
	require.NoError(t, err)

	// A fresh engine over the same session must replay the signature.
	reloaded, err := New(context.Background(), Config{
		Provider:  &scriptedProvider{},
		Adapter:   db,
		Store:     st,
		SessionID: sessionID,
	})
	require.NoError(t, err)

	var found bool
	for _, msg := range reloaded.history {
		for _, call := range msg.ToolCalls {
			if string(call.ThoughtSignature) == string(sig) {
				found = true
				assert.Equal(t, "public", call.Arguments["schema"])
			}
		}
	}
	assert.True(t, found)
}

func TestSystemPromptNamesEngine(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{FinishReason: llm.FinishStop, Content: "hi"},
	}}
	a, _, _ := newTestAgent(t, provider, &stubDB{kind: "mysql"})

	_, err := a.Chat(context.Background(), "hello")
	require.NoError(t, err)
	require.NotEmpty(t, provider.systems)
	assert.Contains(t, provider.systems[0], "mysql")
}

func TestLocalizerFallback(t *testing.T) {
	zh := NewLocalizer("zh")
	assert.NotEqual(t, zh.T("tool.list_tables"), NewLocalizer("en").T("tool.list_tables"))

	unknownLang := NewLocalizer("fr")
	assert.Equal(t, NewLocalizer("en").T("tool.list_tables"), unknownLang.T("tool.list_tables"))

	assert.Equal(t, "no.such.key", zh.T("no.such.key"))
}
