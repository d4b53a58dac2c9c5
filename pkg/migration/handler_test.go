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

package migration

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/pkg/adapter"
	"github.com/weftdb/weft/pkg/store"
)

// fakeAdapter is a canned-response source/target for planner and
// handler tests. Only the migration-facing calls are scripted.
type fakeAdapter struct {
	kind       string
	objects    map[string]interface{}
	tableOrder []string
	edges      []adapter.FKEdge
	ddl        map[string]string // "<type>/<name>" -> DDL

	executed []string
	failOn   map[string]string // DDL substring -> error message
}

func (f *fakeAdapter) Kind() string { return f.kind }

func (f *fakeAdapter) GetAllObjects(ctx context.Context, schema string, objectTypes []string) *adapter.Result {
	return adapter.Success(map[string]interface{}{"schema": schema, "objects": f.objects})
}

func (f *fakeAdapter) GetObjectDDL(ctx context.Context, objectType, name, schema string) *adapter.Result {
	ddl, ok := f.ddl[objectType+"/"+name]
	if !ok {
		return adapter.Errorf("no DDL for " + name)
	}
	return adapter.Success(map[string]interface{}{"ddl": ddl})
}

func (f *fakeAdapter) GetForeignKeyDependencies(ctx context.Context, schema string) *adapter.Result {
	return adapter.Success(map[string]interface{}{
		"edges":       f.edges,
		"table_order": f.tableOrder,
	})
}

func (f *fakeAdapter) ExecuteSQL(ctx context.Context, sql string, confirmed bool) *adapter.Result {
	if !confirmed {
		return adapter.PendingConfirmation(sql)
	}
	for substr, msg := range f.failOn {
		if strings.Contains(sql, substr) {
			return adapter.Errorf(msg)
		}
	}
	f.executed = append(f.executed, sql)
	return adapter.Success(nil)
}

func (f *fakeAdapter) GetDBInfo(ctx context.Context) *adapter.Result { return adapter.Success(nil) }
func (f *fakeAdapter) ListTables(ctx context.Context, schema string) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) DescribeTable(ctx context.Context, table, schema string) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) GetSampleData(ctx context.Context, table, schema string, limit int) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) ListDatabases(ctx context.Context) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) ExecuteSafeQuery(ctx context.Context, sql string) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) RunExplain(ctx context.Context, sql string, analyze bool) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) CheckQueryPerformance(ctx context.Context, sql string) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) CreateIndex(ctx context.Context, sql string, concurrent bool) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) AnalyzeTable(ctx context.Context, table, schema string) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) CheckIndexUsage(ctx context.Context, table, schema string) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) GetTableStats(ctx context.Context, table, schema string) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) GetRunningQueries(ctx context.Context) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) IdentifySlowQueries(ctx context.Context, minMs, limit int) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) GetObjectDependencies(ctx context.Context, schema string) *adapter.Result {
	return adapter.Success(nil)
}
func (f *fakeAdapter) Close() error { return nil }

func newMySQLSource() *fakeAdapter {
	return &fakeAdapter{
		kind: store.EngineMySQL,
		objects: map[string]interface{}{
			"sequence": []string{},
			"table":    []string{"orders", "users", "standalone"},
			"index":    []string{"idx_orders_user", "orders_pkey"},
			"view":     []string{"v_totals"},
		},
		tableOrder: []string{"users", "orders"},
		edges:      []adapter.FKEdge{{From: "orders", To: "users"}},
		ddl: map[string]string{
			"table/users":          "CREATE TABLE users (id INT AUTO_INCREMENT, PRIMARY KEY (id)) ENGINE=InnoDB",
			"table/orders":         "CREATE TABLE orders (id INT AUTO_INCREMENT, user_id INT, PRIMARY KEY (id)) ENGINE=InnoDB",
			"table/standalone":     "CREATE TABLE standalone (n TINYINT(1))",
			"index/idx_orders_user": "CREATE INDEX idx_orders_user ON orders (user_id)",
			"view/v_totals":        "CREATE VIEW v_totals AS SELECT user_id, count(*) FROM orders GROUP BY user_id",
		},
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "weft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func createTask(t *testing.T, st *store.Store) *store.MigrationTask {
	t.Helper()
	task := &store.MigrationTask{
		Name:         "mysql-to-pg",
		SourceKind:   store.EngineMySQL,
		TargetKind:   store.EnginePostgreSQL,
		Status:       store.TaskPending,
		SourceSchema: "shop",
		TargetSchema: "public",
	}
	require.NoError(t, st.CreateMigrationTask(context.Background(), task))
	return task
}

func TestCreatePlanOrdering(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task := createTask(t, st)
	h := NewHandler(st, newMySQLSource(), &fakeAdapter{kind: store.EnginePostgreSQL})

	_, err := h.CreatePlan(ctx, task)
	require.NoError(t, err)

	items, err := st.GetMigrationItems(ctx, task.ID)
	require.NoError(t, err)

	var names []string
	for _, item := range items {
		names = append(names, item.ObjectName)
	}
	// Tables in FK order with the unreferenced one appended, pkey index
	// filtered, view last.
	assert.Equal(t, []string{"users", "orders", "standalone", "idx_orders_user", "v_totals"}, names)

	for i, item := range items {
		assert.Equal(t, i, item.ExecutionOrder)
		assert.Equal(t, store.ItemPending, item.Status)
		assert.NotEmpty(t, item.SourceDDL)
		assert.Empty(t, item.TargetDDL)
	}

	task, err = st.GetMigrationTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskConfirmed, task.Status)
	assert.Equal(t, 5, task.TotalCount)
}

func TestExecuteBatchCompletes(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task := createTask(t, st)
	target := &fakeAdapter{kind: store.EnginePostgreSQL}
	h := NewHandler(st, newMySQLSource(), target)

	_, err := h.CreatePlan(ctx, task)
	require.NoError(t, err)

	var progressed int
	h.OnProgress = func(item *store.MigrationItem) { progressed++ }

	task, err = h.ExecuteBatch(ctx, task.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, store.TaskCompleted, task.Status)
	assert.Equal(t, 5, task.CompletedCount)
	assert.Zero(t, task.FailedCount)
	assert.Equal(t, 5, progressed)

	// Converted DDL reached the target.
	require.NotEmpty(t, target.executed)
	assert.Contains(t, target.executed[0], "SERIAL")
	assert.NotContains(t, target.executed[0], "ENGINE=")
}

func TestExecuteBatchFailureMarksTaskFailed(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task := createTask(t, st)
	target := &fakeAdapter{
		kind:   store.EnginePostgreSQL,
		failOn: map[string]string{"v_totals": "syntax error near GROUP"},
	}
	h := NewHandler(st, newMySQLSource(), target)

	_, err := h.CreatePlan(ctx, task)
	require.NoError(t, err)

	task, err = h.ExecuteBatch(ctx, task.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, store.TaskFailed, task.Status)
	assert.Equal(t, 4, task.CompletedCount)
	assert.Equal(t, 1, task.FailedCount)
}

func TestRetryFailedReEnters(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task := createTask(t, st)
	target := &fakeAdapter{
		kind:   store.EnginePostgreSQL,
		failOn: map[string]string{"v_totals": "transient"},
	}
	h := NewHandler(st, newMySQLSource(), target)

	_, err := h.CreatePlan(ctx, task)
	require.NoError(t, err)
	_, err = h.ExecuteBatch(ctx, task.ID, 0)
	require.NoError(t, err)

	retried, err := h.RetryFailed(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)

	// The failure condition is gone on the second pass.
	target.failOn = nil
	task, err = h.ExecuteBatch(ctx, task.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, store.TaskCompleted, task.Status)
	assert.Equal(t, 5, task.CompletedCount)

	items, err := st.GetMigrationItems(ctx, task.ID)
	require.NoError(t, err)
	for _, item := range items {
		if item.ObjectName == "v_totals" {
			assert.Equal(t, 1, item.RetryCount)
		}
	}
}

func TestExecuteBatchLimitsN(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task := createTask(t, st)
	h := NewHandler(st, newMySQLSource(), &fakeAdapter{kind: store.EnginePostgreSQL})

	_, err := h.CreatePlan(ctx, task)
	require.NoError(t, err)

	task, err = h.ExecuteBatch(ctx, task.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, store.TaskExecuting, task.Status)
	assert.Equal(t, 2, task.CompletedCount)
}

func TestSkipItem(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task := createTask(t, st)
	h := NewHandler(st, newMySQLSource(), &fakeAdapter{kind: store.EnginePostgreSQL})

	_, err := h.CreatePlan(ctx, task)
	require.NoError(t, err)

	items, err := st.GetMigrationItems(ctx, task.ID)
	require.NoError(t, err)

	require.NoError(t, h.SkipItem(ctx, task.ID, items[0].ID, "handled manually"))

	task, err = st.GetMigrationTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, task.SkippedCount)
}

func TestGenerateReport(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	task := createTask(t, st)
	target := &fakeAdapter{
		kind:   store.EnginePostgreSQL,
		failOn: map[string]string{"v_totals": "boom"},
	}
	h := NewHandler(st, newMySQLSource(), target)

	_, err := h.CreatePlan(ctx, task)
	require.NoError(t, err)
	_, err = h.ExecuteBatch(ctx, task.ID, 0)
	require.NoError(t, err)

	report, err := h.GenerateReport(ctx, task.ID)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.FailedList, 1)
	assert.Equal(t, "v_totals", report.FailedList[0].ObjectName)
	assert.Equal(t, 1, report.ByType["view"]["failed"])
	assert.Equal(t, 3, report.ByType["table"]["completed"])
}

func TestCompareDatabases(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	source := newMySQLSource()
	target := &fakeAdapter{
		kind: store.EnginePostgreSQL,
		objects: map[string]interface{}{
			"table": []string{"users", "extra_tmp"},
		},
	}
	h := NewHandler(st, source, target)

	diff, err := h.CompareDatabases(ctx, "shop", "public")
	require.NoError(t, err)

	tables := diff["table"].(map[string]interface{})
	assert.Equal(t, []string{"orders", "standalone"}, tables["missing_on_target"])
	assert.Equal(t, []string{"extra_tmp"}, tables["extra_on_target"])
}

func TestParseOptions(t *testing.T) {
	assert.False(t, ParseOptions("").AutoExecute)
	assert.True(t, ParseOptions(`{"auto_execute":true}`).AutoExecute)
}
