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

	"github.com/weftdb/weft/pkg/adapter"
	"github.com/weftdb/weft/pkg/llm"
	"github.com/weftdb/weft/pkg/skill"
	"github.com/weftdb/weft/pkg/sqlanalyzer"
	"github.com/weftdb/weft/pkg/tool"
)

// registerBuiltinTools populates the registry with the DB, migration
// and interaction builtins. Descriptions are localized at registration.
func (a *Agent) registerBuiltinTools() {
	l := a.localizer

	reg := func(name, source string, params *tool.JSONSchema, h tool.Handler) {
		a.registry.Register(&tool.Definition{
			Name:        name,
			Description: l.T("tool." + name),
			Parameters:  params,
			Source:      source,
			Handler:     h,
		})
	}

	schemaParam := map[string]*tool.JSONSchema{
		"schema": tool.String("schema name, engine default when omitted"),
	}
	tableParams := map[string]*tool.JSONSchema{
		"table":  tool.String("table name"),
		"schema": tool.String("schema name, engine default when omitted"),
	}

	reg("list_tables", "builtin", tool.Object("", schemaParam, nil),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return a.withAdapter(func(db adapter.Adapter) *adapter.Result {
				return db.ListTables(ctx, argString(args, "schema"))
			})
		})

	reg("describe_table", "builtin", tool.Object("", tableParams, []string{"table"}),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return a.withAdapter(func(db adapter.Adapter) *adapter.Result {
				return db.DescribeTable(ctx, argString(args, "table"), argString(args, "schema"))
			})
		})

	reg("get_sample_data", "builtin", tool.Object("", map[string]*tool.JSONSchema{
		"table":  tool.String("table name"),
		"schema": tool.String("schema name"),
		"limit":  tool.Integer("row count, default 10").WithDefault(10),
	}, []string{"table"}),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return a.withAdapter(func(db adapter.Adapter) *adapter.Result {
				return db.GetSampleData(ctx, argString(args, "table"), argString(args, "schema"), argInt(args, "limit", 10))
			})
		})

	reg("list_databases", "builtin", tool.Object("", nil, nil),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return a.withAdapter(func(db adapter.Adapter) *adapter.Result {
				return db.ListDatabases(ctx)
			})
		})

	reg("switch_database", "builtin", tool.Object("", map[string]*tool.JSONSchema{
		"database": tool.String("database to connect to"),
	}, []string{"database"}),
		a.handleSwitchDatabase)

	reg("execute_safe_query", "builtin", tool.Object("", map[string]*tool.JSONSchema{
		"sql": tool.String("read-only SQL, or a bare projection list"),
	}, []string{"sql"}),
		a.handleExecuteSafeQuery)

	reg("execute_sql", "builtin", tool.Object("", map[string]*tool.JSONSchema{
		"sql":       tool.String("SQL statement"),
		"confirmed": tool.Boolean("set true after the user approved a mutation"),
	}, []string{"sql"}),
		a.handleExecuteSQL)

	reg("run_explain", "builtin", tool.Object("", map[string]*tool.JSONSchema{
		"sql":     tool.String("statement to explain"),
		"analyze": tool.Boolean("execute the statement for real timings"),
	}, []string{"sql"}),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return a.withAdapter(func(db adapter.Adapter) *adapter.Result {
				return db.RunExplain(ctx, argString(args, "sql"), argBool(args, "analyze"))
			})
		})

	reg("create_index", "builtin", tool.Object("", map[string]*tool.JSONSchema{
		"sql":        tool.String("CREATE INDEX statement"),
		"concurrent": tool.Boolean("use the engine's non-blocking build").WithDefault(true),
		"confirmed":  tool.Boolean("set true after the user approved"),
	}, []string{"sql"}),
		a.handleCreateIndex)

	reg("analyze_table", "builtin", tool.Object("", tableParams, []string{"table"}),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return a.withAdapter(func(db adapter.Adapter) *adapter.Result {
				return db.AnalyzeTable(ctx, argString(args, "table"), argString(args, "schema"))
			})
		})

	reg("check_index_usage", "builtin", tool.Object("", tableParams, []string{"table"}),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return a.withAdapter(func(db adapter.Adapter) *adapter.Result {
				return db.CheckIndexUsage(ctx, argString(args, "table"), argString(args, "schema"))
			})
		})

	reg("get_table_stats", "builtin", tool.Object("", tableParams, []string{"table"}),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return a.withAdapter(func(db adapter.Adapter) *adapter.Result {
				return db.GetTableStats(ctx, argString(args, "table"), argString(args, "schema"))
			})
		})

	reg("identify_slow_queries", "builtin", tool.Object("", map[string]*tool.JSONSchema{
		"min_duration_ms": tool.Integer("threshold in milliseconds").WithDefault(1000),
		"limit":           tool.Integer("max statements").WithDefault(10),
	}, nil),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return a.withAdapter(func(db adapter.Adapter) *adapter.Result {
				return db.IdentifySlowQueries(ctx, argInt(args, "min_duration_ms", 1000), argInt(args, "limit", 10))
			})
		})

	reg("get_running_queries", "builtin", tool.Object("", nil, nil),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return a.withAdapter(func(db adapter.Adapter) *adapter.Result {
				return db.GetRunningQueries(ctx)
			})
		})

	a.registerMigrationTools(reg)

	reg("request_user_input", "interaction", tool.Object("", map[string]*tool.JSONSchema{
		"prompt": tool.String("what to ask the user"),
		"fields": tool.Array("form fields", tool.Object("", map[string]*tool.JSONSchema{
			"name":  tool.String("field name"),
			"label": tool.String("field label"),
		}, nil)),
	}, []string{"prompt"}),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return &tool.Result{Status: tool.StatusFormInputRequested, Data: args}
		})
}

// withAdapter guards against a missing connection.
func (a *Agent) withAdapter(fn func(adapter.Adapter) *adapter.Result) *tool.Result {
	if a.adapter == nil {
		return tool.Errorf("no database connection configured")
	}
	return adapterToTool(fn(a.adapter))
}

// handleExecuteSafeQuery gates analytical queries behind a performance
// check. EXPLAIN failure is advisory and never blocks.
func (a *Agent) handleExecuteSafeQuery(ctx context.Context, args map[string]interface{}) *tool.Result {
	if a.adapter == nil {
		return tool.Errorf("no database connection configured")
	}
	sql := argString(args, "sql")

	if sqlanalyzer.IsAnalytical(sql) {
		report := a.analyzeStatement(ctx, sql)
		if report.ShouldConfirm {
			a.pendingOps = append(a.pendingOps, PendingOp{Kind: OpExecuteSafeQueryForce, SQL: sql})
			return &tool.Result{
				Status:  tool.StatusPendingPerformance,
				Message: a.localizer.T("performance_confirmation"),
				Data: map[string]interface{}{
					"sql":                 sql,
					"issues":              report.Issues,
					"performance_summary": report.PerformanceSummary,
					"operation_index":     len(a.pendingOps) - 1,
				},
			}
		}
	}
	return adapterToTool(a.adapter.ExecuteSafeQuery(ctx, sql))
}

// analyzeStatement runs EXPLAIN and folds the plan through the analyzer.
func (a *Agent) analyzeStatement(ctx context.Context, sql string) *sqlanalyzer.Report {
	res := a.adapter.RunExplain(ctx, sql, false)
	if res.Status != adapter.StatusSuccess {
		return sqlanalyzer.ExplainFailed(fmt.Errorf("%s", res.Message))
	}
	plan, _ := res.Data["plan"].(string)
	return a.analyzer.AnalyzePlan(a.adapter.Kind(), plan)
}

// handleExecuteSQL forwards to the adapter; unattended migration mode
// force-confirms every call. Unconfirmed mutations join the queue.
func (a *Agent) handleExecuteSQL(ctx context.Context, args map[string]interface{}) *tool.Result {
	if a.adapter == nil {
		return tool.Errorf("no database connection configured")
	}
	sql := argString(args, "sql")
	confirmed := argBool(args, "confirmed") || a.autoExecMigration

	res := a.adapter.ExecuteSQL(ctx, sql, confirmed)
	out := adapterToTool(res)
	if out.Status == tool.StatusPendingConfirmation {
		a.pendingOps = append(a.pendingOps, PendingOp{Kind: OpExecuteSQL, SQL: sql})
		out.Message = a.localizer.T("pending_confirmation")
		if out.Data == nil {
			out.Data = map[string]interface{}{}
		}
		out.Data["operation_index"] = len(a.pendingOps) - 1
	}
	return out
}

// handleCreateIndex queues the build unless already approved. Index
// builds mutate the schema, so they gate like any other DDL.
func (a *Agent) handleCreateIndex(ctx context.Context, args map[string]interface{}) *tool.Result {
	if a.adapter == nil {
		return tool.Errorf("no database connection configured")
	}
	sql := argString(args, "sql")
	concurrent := true
	if v, ok := args["concurrent"].(bool); ok {
		concurrent = v
	}

	if !argBool(args, "confirmed") && !a.autoExecMigration {
		a.pendingOps = append(a.pendingOps, PendingOp{Kind: OpCreateIndex, SQL: sql, Concurrent: concurrent})
		return &tool.Result{
			Status:  tool.StatusPendingConfirmation,
			Message: a.localizer.T("pending_confirmation"),
			Data: map[string]interface{}{
				"sql":             sql,
				"operation_index": len(a.pendingOps) - 1,
			},
		}
	}
	return adapterToTool(a.adapter.CreateIndex(ctx, sql, concurrent))
}

// handleSwitchDatabase reconnects the adapter to another database on
// the same server.
func (a *Agent) handleSwitchDatabase(ctx context.Context, args map[string]interface{}) *tool.Result {
	database := argString(args, "database")
	if database == "" {
		return tool.Errorf("database is required")
	}
	if a.adapter == nil {
		return tool.Errorf("no database connection configured")
	}

	cfg := a.adapterCfg
	cfg.Database = database
	next, err := adapter.New(cfg)
	if err != nil {
		return tool.Errorf(fmt.Sprintf("switch database: %v", err))
	}

	_ = a.adapter.Close()
	a.adapter = next
	a.adapterCfg = cfg
	a.auditConfigChange(ctx, "switch_database", database)

	return tool.Success(map[string]interface{}{"database": database})
}

// buildCatalog assembles the tool list for one LLM call: builtins and
// external-server tools from the registry, plus the current skills.
func (a *Agent) buildCatalog() []llm.ToolDefinition {
	a.refreshSkillTools()

	defs := a.registry.List()
	catalog := make([]llm.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		schema := def.Parameters
		if schema == nil {
			schema = tool.Object("", nil, nil)
		}
		raw, err := schema.ToJSON()
		if err != nil {
			continue
		}
		catalog = append(catalog, llm.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  raw,
		})
	}
	return catalog
}

// refreshSkillTools re-registers skill_<name> entries so hot-reloaded
// skills are visible on the next turn.
func (a *Agent) refreshSkillTools() {
	if a.skills == nil {
		return
	}

	current := map[string]bool{}
	for _, s := range a.skills.ModelInvocable() {
		name := "skill_" + s.Name
		current[name] = true
		skillRef := s

		description := s.Description
		if description == "" {
			description = a.localizer.T("skill_description") + " " + s.Name
		}

		a.registry.Register(&tool.Definition{
			Name:        name,
			Description: description,
			Parameters: tool.Object("", map[string]*tool.JSONSchema{
				"arguments": tool.String("argument string passed to the skill"),
			}, nil),
			Source: "skill",
			Handler: func(ctx context.Context, args map[string]interface{}) *tool.Result {
				exp := skill.Execute(ctx, skillRef, argString(args, "arguments"), nil)
				return tool.Success(map[string]interface{}{
					"instructions":  exp.Instructions,
					"allowed_tools": exp.AllowedTools,
				})
			},
		})
	}

	// Withdraw entries whose skill disappeared.
	for _, def := range a.registry.List() {
		if def.Source == "skill" && !current[def.Name] {
			a.registry.Unregister(def.Name)
		}
	}
}
