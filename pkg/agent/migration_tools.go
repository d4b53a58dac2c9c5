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
	"fmt"

	"github.com/weftdb/weft/pkg/migration"
	"github.com/weftdb/weft/pkg/store"
	"github.com/weftdb/weft/pkg/tool"
)

// registerMigrationTools adds the migration tool family. Every handler
// requires a wired migration handler except request_migration_setup,
// which exists precisely so the model can ask for one.
func (a *Agent) registerMigrationTools(reg func(name, source string, params *tool.JSONSchema, h tool.Handler)) {
	taskParam := map[string]*tool.JSONSchema{
		"task_id": tool.String("migration task id"),
	}

	reg("request_migration_setup", "migration", tool.Object("", map[string]*tool.JSONSchema{
		"reason":      tool.String("why the migration needs connection details"),
		"source_kind": tool.String("suggested source engine"),
		"target_kind": tool.String("suggested target engine"),
	}, nil),
		func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return &tool.Result{Status: tool.StatusMigrationSetupRequested, Data: args}
		})

	reg("analyze_source_database", "migration", tool.Object("", map[string]*tool.JSONSchema{
		"schema": tool.String("source schema to enumerate"),
	}, nil),
		a.requireMigration(func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result {
			analysis, err := h.Analyze(ctx, argString(args, "schema"))
			if err != nil {
				return tool.Errorf(fmt.Sprintf("analyze source: %v", err))
			}
			counts := map[string]interface{}{}
			for objType, names := range analysis.Objects {
				counts[objType] = len(names)
			}
			return tool.Success(map[string]interface{}{
				"schema":        analysis.Schema,
				"objects":       toInterfaceMap(analysis.Objects),
				"object_counts": counts,
				"table_order":   analysis.TableOrder,
			})
		}))

	reg("create_migration_plan", "migration", tool.Object("", taskParam, []string{"task_id"}),
		a.requireMigration(func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result {
			task, err := a.st.GetMigrationTask(ctx, argString(args, "task_id"))
			if err != nil {
				return tool.Errorf(fmt.Sprintf("load task: %v", err))
			}
			a.applyTaskOptions(task)
			analysis, err := h.CreatePlan(ctx, task)
			if err != nil {
				return tool.Errorf(fmt.Sprintf("create plan: %v", err))
			}
			return tool.Success(map[string]interface{}{
				"task_id":     task.ID,
				"table_order": analysis.TableOrder,
				"schema":      analysis.Schema,
			})
		}))

	reg("get_migration_plan", "migration", tool.Object("", taskParam, []string{"task_id"}),
		a.requireMigration(func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result {
			items, err := a.st.GetMigrationItems(ctx, argString(args, "task_id"))
			if err != nil {
				return tool.Errorf(fmt.Sprintf("load plan: %v", err))
			}
			summary := make([]map[string]interface{}, 0, len(items))
			for _, item := range items {
				summary = append(summary, map[string]interface{}{
					"id":          item.ID,
					"object_type": item.ObjectType,
					"object_name": item.ObjectName,
					"status":      item.Status,
					"order":       item.ExecutionOrder,
				})
			}
			return tool.Success(map[string]interface{}{"items": summary})
		}))

	reg("get_migration_status", "migration", tool.Object("", taskParam, []string{"task_id"}),
		a.requireMigration(func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result {
			task, err := a.st.GetMigrationTask(ctx, argString(args, "task_id"))
			if err != nil {
				return tool.Errorf(fmt.Sprintf("load task: %v", err))
			}
			a.applyTaskOptions(task)
			return tool.Success(taskStatus(task))
		}))

	reg("execute_migration_item", "migration", tool.Object("", map[string]*tool.JSONSchema{
		"task_id": tool.String("migration task id"),
		"item_id": tool.String("migration item id"),
	}, []string{"task_id", "item_id"}),
		a.requireMigration(func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result {
			taskID := argString(args, "task_id")
			task, err := a.st.GetMigrationTask(ctx, taskID)
			if err != nil {
				return tool.Errorf(fmt.Sprintf("load task: %v", err))
			}
			a.applyTaskOptions(task)
			item, err := findItem(ctx, a.st, taskID, argString(args, "item_id"))
			if err != nil {
				return tool.Errorf(err.Error())
			}
			if err := h.ExecuteItem(ctx, task, item); err != nil {
				return tool.Errorf(fmt.Sprintf("execute item: %v", err))
			}
			return tool.Success(map[string]interface{}{
				"object_name": item.ObjectName,
				"status":      item.Status,
				"error":       item.Error,
				"notes":       item.ConversionNotes,
			})
		}))

	reg("execute_migration_batch", "migration", tool.Object("", map[string]*tool.JSONSchema{
		"task_id": tool.String("migration task id"),
		"count":   tool.Integer("max items to execute, 0 drains all").WithDefault(0),
	}, []string{"task_id"}),
		a.requireMigration(func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result {
			task, err := a.st.GetMigrationTask(ctx, argString(args, "task_id"))
			if err != nil {
				return tool.Errorf(fmt.Sprintf("load task: %v", err))
			}
			a.applyTaskOptions(task)
			task, err = h.ExecuteBatch(ctx, task.ID, argInt(args, "count", 0))
			if err != nil {
				return tool.Errorf(fmt.Sprintf("execute batch: %v", err))
			}
			return tool.Success(taskStatus(task))
		}))

	reg("compare_databases", "migration", tool.Object("", map[string]*tool.JSONSchema{
		"source_schema": tool.String("schema on the source"),
		"target_schema": tool.String("schema on the target"),
	}, nil),
		a.requireMigration(func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result {
			diff, err := h.CompareDatabases(ctx, argString(args, "source_schema"), argString(args, "target_schema"))
			if err != nil {
				return tool.Errorf(fmt.Sprintf("compare: %v", err))
			}
			return tool.Success(map[string]interface{}{"diff": diff})
		}))

	reg("generate_migration_report", "migration", tool.Object("", taskParam, []string{"task_id"}),
		a.requireMigration(func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result {
			report, err := h.GenerateReport(ctx, argString(args, "task_id"))
			if err != nil {
				return tool.Errorf(fmt.Sprintf("generate report: %v", err))
			}
			// The report ends unattended execution for this task.
			a.autoExecMigration = false

			raw, err := json.Marshal(report)
			if err != nil {
				return tool.Errorf(fmt.Sprintf("encode report: %v", err))
			}
			var data map[string]interface{}
			if err := json.Unmarshal(raw, &data); err != nil {
				return tool.Errorf(fmt.Sprintf("encode report: %v", err))
			}
			return tool.Success(data)
		}))

	reg("skip_migration_item", "migration", tool.Object("", map[string]*tool.JSONSchema{
		"task_id": tool.String("migration task id"),
		"item_id": tool.String("migration item id"),
		"reason":  tool.String("why the item is skipped"),
	}, []string{"task_id", "item_id"}),
		a.requireMigration(func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result {
			err := h.SkipItem(ctx, argString(args, "task_id"), argString(args, "item_id"), argString(args, "reason"))
			if err != nil {
				return tool.Errorf(fmt.Sprintf("skip item: %v", err))
			}
			return tool.Success(map[string]interface{}{"skipped": true})
		}))

	reg("retry_failed_items", "migration", tool.Object("", taskParam, []string{"task_id"}),
		a.requireMigration(func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result {
			retried, err := h.RetryFailed(ctx, argString(args, "task_id"))
			if err != nil {
				return tool.Errorf(fmt.Sprintf("retry failed: %v", err))
			}
			return tool.Success(map[string]interface{}{"retried": retried})
		}))
}

// applyTaskOptions activates unattended mode when the task was created
// with auto_execute. The flag holds until generate_migration_report.
func (a *Agent) applyTaskOptions(task *store.MigrationTask) {
	if migration.ParseOptions(task.Options).AutoExecute {
		a.autoExecMigration = true
	}
}

// requireMigration guards migration handlers against a missing setup.
func (a *Agent) requireMigration(fn func(ctx context.Context, h *migration.Handler, args map[string]interface{}) *tool.Result) tool.Handler {
	return func(ctx context.Context, args map[string]interface{}) *tool.Result {
		if a.migration == nil {
			return tool.Errorf("no migration configured, call request_migration_setup first")
		}
		return fn(ctx, a.migration, args)
	}
}

func taskStatus(task *store.MigrationTask) map[string]interface{} {
	return map[string]interface{}{
		"task_id":   task.ID,
		"status":    task.Status,
		"total":     task.TotalCount,
		"completed": task.CompletedCount,
		"failed":    task.FailedCount,
		"skipped":   task.SkippedCount,
	}
}

func findItem(ctx context.Context, st *store.Store, taskID, itemID string) (*store.MigrationItem, error) {
	items, err := st.GetMigrationItems(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	for _, item := range items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return nil, fmt.Errorf("item %s not found in task %s", itemID, taskID)
}

func toInterfaceMap(objects map[string][]string) map[string]interface{} {
	out := make(map[string]interface{}, len(objects))
	for k, v := range objects {
		out[k] = v
	}
	return out
}
