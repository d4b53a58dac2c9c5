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

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// --- Migration tasks ---

// CreateMigrationTask persists a new task in status pending.
func (s *Store) CreateMigrationTask(ctx context.Context, task *MigrationTask) error {
	if task.ID == "" {
		task.ID = newID()
	}
	if task.Status == "" {
		task.Status = TaskPending
	}
	if task.Options == "" {
		task.Options = "{}"
	}
	now := nowNanos()
	task.CreatedAt = fromNanos(now)
	task.UpdatedAt = fromNanos(now)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO migration_tasks (
				id, name, source_connection_id, target_connection_id, source_kind, target_kind,
				status, total_count, completed_count, failed_count, skipped_count,
				source_schema, target_schema, options, analysis, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.Name, task.SourceConnectionID, task.TargetConnectionID,
			task.SourceKind, task.TargetKind, task.Status,
			task.TotalCount, task.CompletedCount, task.FailedCount, task.SkippedCount,
			task.SourceSchema, task.TargetSchema, task.Options, task.Analysis, now, now)
		return err
	})
}

// GetMigrationTask returns the task by id.
func (s *Store) GetMigrationTask(ctx context.Context, id string) (*MigrationTask, error) {
	row := s.db.QueryRowContext(ctx, taskColumns+" WHERE id = ?", id)
	return scanTask(row)
}

// ListMigrationTasks returns all tasks, newest first.
func (s *Store) ListMigrationTasks(ctx context.Context) ([]*MigrationTask, error) {
	rows, err := s.db.QueryContext(ctx, taskColumns+" ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list migration tasks: %w", err)
	}
	defer rows.Close()

	var out []*MigrationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// UpdateMigrationTaskStatus transitions the task status.
func (s *Store) UpdateMigrationTaskStatus(ctx context.Context, id, status string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE migration_tasks SET status = ?, updated_at = ? WHERE id = ?",
			status, nowNanos(), id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// UpdateMigrationTaskCounters overwrites the task's progress counters.
// Counters are recomputed from item states by the executor, so values may
// move in any direction across retries.
func (s *Store) UpdateMigrationTaskCounters(ctx context.Context, id string, total, completed, failed, skipped int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE migration_tasks
			SET total_count = ?, completed_count = ?, failed_count = ?, skipped_count = ?, updated_at = ?
			WHERE id = ?`,
			total, completed, failed, skipped, nowNanos(), id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// SetMigrationTaskAnalysis stores the JSON analysis result.
func (s *Store) SetMigrationTaskAnalysis(ctx context.Context, id, analysis string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE migration_tasks SET analysis = ?, updated_at = ? WHERE id = ?",
			analysis, nowNanos(), id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// DeleteMigrationTask removes the task; items cascade.
func (s *Store) DeleteMigrationTask(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM migration_tasks WHERE id = ?", id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

const taskColumns = `
	SELECT id, name, source_connection_id, target_connection_id, source_kind, target_kind,
	       status, total_count, completed_count, failed_count, skipped_count,
	       source_schema, target_schema, options, analysis, created_at, updated_at
	FROM migration_tasks`

func scanTask(row rowScanner) (*MigrationTask, error) {
	var t MigrationTask
	var created, updated int64
	err := row.Scan(&t.ID, &t.Name, &t.SourceConnectionID, &t.TargetConnectionID,
		&t.SourceKind, &t.TargetKind, &t.Status,
		&t.TotalCount, &t.CompletedCount, &t.FailedCount, &t.SkippedCount,
		&t.SourceSchema, &t.TargetSchema, &t.Options, &t.Analysis, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan migration task: %w", err)
	}
	t.CreatedAt = fromNanos(created)
	t.UpdatedAt = fromNanos(updated)
	return &t, nil
}

// --- Migration items ---

// AddMigrationItems bulk-inserts plan items for a task in one transaction.
func (s *Store) AddMigrationItems(ctx context.Context, items []*MigrationItem) error {
	now := nowNanos()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO migration_items (
				id, task_id, object_type, object_name, schema_name, execution_order, depends_on,
				status, source_ddl, target_ddl, conversion_notes, execution_result, error, retry_count,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, item := range items {
			if item.ID == "" {
				item.ID = newID()
			}
			if item.Status == "" {
				item.Status = ItemPending
			}
			var dependsOn interface{}
			if len(item.DependsOn) > 0 {
				data, err := json.Marshal(item.DependsOn)
				if err != nil {
					return fmt.Errorf("failed to marshal depends_on: %w", err)
				}
				dependsOn = string(data)
			}
			if _, err := stmt.ExecContext(ctx,
				item.ID, item.TaskID, item.ObjectType, item.ObjectName, item.Schema,
				item.ExecutionOrder, dependsOn, item.Status, item.SourceDDL, item.TargetDDL,
				item.ConversionNotes, item.ExecutionResult, item.Error, item.RetryCount,
				now, now); err != nil {
				return fmt.Errorf("failed to insert item %s: %w", item.ObjectName, err)
			}
		}
		return nil
	})
}

// GetMigrationItems returns a task's items ordered by execution_order.
func (s *Store) GetMigrationItems(ctx context.Context, taskID string) ([]*MigrationItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, object_type, object_name, schema_name, execution_order,
		       depends_on, status, source_ddl, COALESCE(target_ddl, ''), conversion_notes,
		       execution_result, error, retry_count, created_at, updated_at
		FROM migration_items WHERE task_id = ?
		ORDER BY execution_order ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration items: %w", err)
	}
	defer rows.Close()

	var out []*MigrationItem
	for rows.Next() {
		var item MigrationItem
		var dependsOn sql.NullString
		var created, updated int64
		if err := rows.Scan(&item.ID, &item.TaskID, &item.ObjectType, &item.ObjectName,
			&item.Schema, &item.ExecutionOrder, &dependsOn, &item.Status,
			&item.SourceDDL, &item.TargetDDL, &item.ConversionNotes,
			&item.ExecutionResult, &item.Error, &item.RetryCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan migration item: %w", err)
		}
		if dependsOn.Valid && dependsOn.String != "" {
			if err := json.Unmarshal([]byte(dependsOn.String), &item.DependsOn); err != nil {
				return nil, fmt.Errorf("failed to unmarshal depends_on: %w", err)
			}
		}
		item.CreatedAt = fromNanos(created)
		item.UpdatedAt = fromNanos(updated)
		out = append(out, &item)
	}
	return out, rows.Err()
}

// UpdateMigrationItem persists an item's mutable execution state.
func (s *Store) UpdateMigrationItem(ctx context.Context, item *MigrationItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE migration_items
			SET status = ?, target_ddl = NULLIF(?, ''), conversion_notes = ?,
			    execution_result = ?, error = ?, retry_count = ?, updated_at = ?
			WHERE id = ?`,
			item.Status, item.TargetDDL, item.ConversionNotes,
			item.ExecutionResult, item.Error, item.RetryCount, nowNanos(), item.ID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}
