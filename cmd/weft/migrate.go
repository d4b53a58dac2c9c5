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
package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/pkg/migration"
	"github.com/weftdb/weft/pkg/store"
)

var (
	migrateSource       string
	migrateTarget       string
	migrateSourceSchema string
	migrateTargetSchema string
	migrateAutoExecute  bool
	migrateCount        int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate schemas between database engines",
	Long: `Plan and execute schema migrations. A migration converts DDL between
engine dialects and replays it on the target in dependency order:
sequences, tables (foreign keys first), indexes, views, functions,
procedures, triggers.`,
}

var migrateCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a migration task",
	Long: `Create a migration task between two saved connections.

Examples:
  weft migrate create legacy-move --source old-mysql --target new-pg \
      --source-schema shop --target-schema public
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		source, err := st.GetConnection(ctx, migrateSource)
		if err != nil {
			return fmt.Errorf("source connection: %w", err)
		}
		target, err := st.GetConnection(ctx, migrateTarget)
		if err != nil {
			return fmt.Errorf("target connection: %w", err)
		}

		options, _ := json.Marshal(migration.Options{AutoExecute: migrateAutoExecute})
		task := &store.MigrationTask{
			Name:               args[0],
			SourceConnectionID: source.ID,
			TargetConnectionID: target.ID,
			SourceKind:         source.Kind,
			TargetKind:         target.Kind,
			Status:             store.TaskPending,
			SourceSchema:       migrateSourceSchema,
			TargetSchema:       migrateTargetSchema,
			Options:            string(options),
		}
		if err := st.CreateMigrationTask(ctx, task); err != nil {
			return err
		}
		fmt.Printf("Created migration task %s (%s -> %s)\n", task.ID, source.Kind, target.Kind)
		fmt.Println("Next: weft migrate plan", task.ID)
		return nil
	},
}

var migratePlanCmd = &cobra.Command{
	Use:   "plan <task-id>",
	Short: "Analyze the source and build the ordered plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, h, task, closeFn, err := openMigration(ctx, args[0])
		if err != nil {
			return err
		}
		defer closeFn()
		defer st.Close()

		analysis, err := h.CreatePlan(ctx, task)
		if err != nil {
			return err
		}

		items, err := st.GetMigrationItems(ctx, task.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Plan for %s: %d objects from schema %q\n", task.ID, len(items), analysis.Schema)
		for _, item := range items {
			fmt.Printf("  %3d. %-10s %s\n", item.ExecutionOrder+1, item.ObjectType, item.ObjectName)
		}
		fmt.Println("Execute with: weft migrate execute", task.ID)
		return nil
	},
}

var migrateExecuteCmd = &cobra.Command{
	Use:   "execute <task-id>",
	Short: "Execute pending migration items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, h, task, closeFn, err := openMigration(ctx, args[0])
		if err != nil {
			return err
		}
		defer closeFn()
		defer st.Close()

		h.OnProgress = func(item *store.MigrationItem) {
			status := item.Status
			if item.Error != "" {
				status += ": " + item.Error
			}
			fmt.Printf("  %-10s %-30s %s\n", item.ObjectType, item.ObjectName, status)
		}

		task, err = h.ExecuteBatch(ctx, task.ID, migrateCount)
		if err != nil {
			return err
		}
		fmt.Printf("Task %s is %s: %d/%d completed, %d failed, %d skipped\n",
			task.ID, task.Status, task.CompletedCount, task.TotalCount,
			task.FailedCount, task.SkippedCount)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show migration task status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 1 {
			task, err := st.GetMigrationTask(ctx, args[0])
			if err != nil {
				return err
			}
			printTask(task)
			return nil
		}

		tasks, err := st.ListMigrationTasks(ctx)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No migration tasks.")
			return nil
		}
		for _, task := range tasks {
			printTask(task)
		}
		return nil
	},
}

var migrateReportCmd = &cobra.Command{
	Use:   "report <task-id>",
	Short: "Print the final migration report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, h, task, closeFn, err := openMigration(ctx, args[0])
		if err != nil {
			return err
		}
		defer closeFn()
		defer st.Close()

		report, err := h.GenerateReport(ctx, task.ID)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var migrateRetryCmd = &cobra.Command{
	Use:   "retry <task-id>",
	Short: "Reset failed items so they run again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, h, task, closeFn, err := openMigration(ctx, args[0])
		if err != nil {
			return err
		}
		defer closeFn()
		defer st.Close()

		retried, err := h.RetryFailed(ctx, task.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%d items reset to pending. Re-run: weft migrate execute %s\n", retried, task.ID)
		return nil
	},
}

// openMigration loads the task and wires a handler over its source and
// target connections. closeFn releases both adapters.
func openMigration(ctx context.Context, taskID string) (*store.Store, *migration.Handler, *store.MigrationTask, func(), error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	task, err := st.GetMigrationTask(ctx, taskID)
	if err != nil {
		st.Close()
		return nil, nil, nil, nil, err
	}

	source, err := openAdapterByID(ctx, st, task.SourceConnectionID)
	if err != nil {
		st.Close()
		return nil, nil, nil, nil, fmt.Errorf("open source: %w", err)
	}
	target, err := openAdapterByID(ctx, st, task.TargetConnectionID)
	if err != nil {
		source.Close()
		st.Close()
		return nil, nil, nil, nil, fmt.Errorf("open target: %w", err)
	}

	closeFn := func() {
		source.Close()
		target.Close()
	}
	return st, migration.NewHandler(st, source, target), task, closeFn, nil
}

func printTask(task *store.MigrationTask) {
	fmt.Printf("%s  %-20s %-10s %s->%s  %d/%d completed, %d failed, %d skipped\n",
		task.ID, task.Name, task.Status, task.SourceKind, task.TargetKind,
		task.CompletedCount, task.TotalCount, task.FailedCount, task.SkippedCount)
}

func init() {
	migrateCreateCmd.Flags().StringVar(&migrateSource, "source", "", "source connection name")
	migrateCreateCmd.Flags().StringVar(&migrateTarget, "target", "", "target connection name")
	migrateCreateCmd.Flags().StringVar(&migrateSourceSchema, "source-schema", "", "schema to migrate from")
	migrateCreateCmd.Flags().StringVar(&migrateTargetSchema, "target-schema", "", "schema to migrate into")
	migrateCreateCmd.Flags().BoolVar(&migrateAutoExecute, "auto-execute", false, "run items without per-item confirmation in chat")
	_ = migrateCreateCmd.MarkFlagRequired("source")
	_ = migrateCreateCmd.MarkFlagRequired("target")

	migrateExecuteCmd.Flags().IntVar(&migrateCount, "count", 0, "max items to execute (0 = all)")

	migrateCmd.AddCommand(migrateCreateCmd)
	migrateCmd.AddCommand(migratePlanCmd)
	migrateCmd.AddCommand(migrateExecuteCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateReportCmd)
	migrateCmd.AddCommand(migrateRetryCmd)
}
