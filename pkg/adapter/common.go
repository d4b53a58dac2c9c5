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

package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
	"github.com/weftdb/weft/pkg/sqlanalyzer"
)

const (
	transientRetries = 3
	retryBaseDelay   = 500 * time.Millisecond
)

// isTransient reports whether an error looks like a transient connectivity
// failure worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection", "timeout", "refused"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn, retrying transient failures with linear backoff
// (0.5s, 1s, 1.5s). Non-transient errors fail immediately.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= transientRetries; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == transientRetries {
			break
		}
		delay := time.Duration(attempt) * retryBaseDelay
		log.Debug("retrying transient database error",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// readOnlyPrefixes are the statement prefixes every engine treats as safe.
// Engine adapters may extend the set (SHOW, DESCRIBE) where applicable.
var readOnlyPrefixes = []string{"SELECT", "WITH", "EXPLAIN"}

// isReadOnly reports whether the statement starts with a read-only prefix.
// extra lists engine-specific additions such as SHOW or DESCRIBE.
func isReadOnly(stmt string, extra ...string) bool {
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	for _, p := range extra {
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// normalizeSafeQuery auto-prepends SELECT when the text parses as a bare
// projection list: it contains a comma, a parenthesis or an AS keyword and
// does not already start with a known statement prefix. The policy is
// uniform across engines.
func normalizeSafeQuery(stmt string, extraPrefixes ...string) string {
	trimmed := strings.TrimSpace(stmt)
	if trimmed == "" {
		return trimmed
	}
	if isReadOnly(trimmed, extraPrefixes...) {
		return trimmed
	}
	upperWithSpace := strings.ToUpper(trimmed) + " "
	looksLikeProjection := strings.Contains(trimmed, ",") ||
		strings.Contains(trimmed, "(") ||
		strings.Contains(upperWithSpace, " AS ")
	if looksLikeProjection {
		return "SELECT " + trimmed
	}
	return trimmed
}

// collectRows materializes sql.Rows into column names and row maps.
func collectRows(rows *sql.Rows) ([]string, []map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}

// queryResult runs a read query with retry and folds the rows into a Result.
func queryResult(ctx context.Context, db *sql.DB, query string, args ...interface{}) *Result {
	var cols []string
	var rowMaps []map[string]interface{}

	start := time.Now()
	err := withRetry(ctx, func() error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		cols, rowMaps, err = collectRows(rows)
		return err
	})
	if err != nil {
		return Errorf("query failed: %v", err)
	}

	res := Success(map[string]interface{}{
		"columns":   cols,
		"rows":      rowMaps,
		"row_count": len(rowMaps),
	})
	res.ExecutionTimeMs = time.Since(start).Milliseconds()
	return res
}

// execInTx runs a mutation inside a single transaction with rollback on
// error, returning affected rows.
func execInTx(ctx context.Context, db *sql.DB, stmt string) *Result {
	var affected int64
	start := time.Now()
	err := withRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
		affected, _ = res.RowsAffected()
		return tx.Commit()
	})
	if err != nil {
		return Errorf("execution failed: %v", err)
	}

	out := Success(map[string]interface{}{"affected_rows": affected})
	out.AffectedRows = affected
	out.ExecutionTimeMs = time.Since(start).Milliseconds()
	return out
}

// execAutocommit runs a statement outside any transaction, for DDL the
// engine refuses to run transactionally (CREATE DATABASE, VACUUM).
func execAutocommit(ctx context.Context, db *sql.DB, stmt string) *Result {
	var affected int64
	start := time.Now()
	err := withRetry(ctx, func() error {
		res, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return Errorf("execution failed: %v", err)
	}

	out := Success(map[string]interface{}{"affected_rows": affected})
	out.AffectedRows = affected
	out.ExecutionTimeMs = time.Since(start).Milliseconds()
	return out
}

// defaultAnalyzer backs the shared query performance check.
var defaultAnalyzer = sqlanalyzer.New(sqlanalyzer.DefaultThresholds())

// checkQueryPerformance runs EXPLAIN through the adapter and delegates
// the plan text to the analyzer. A failed EXPLAIN yields an advisory
// report instead of an error.
func checkQueryPerformance(ctx context.Context, a Adapter, stmt string) *Result {
	res := a.RunExplain(ctx, stmt, false)
	if res.Status != StatusSuccess {
		out := Success(reportData(sqlanalyzer.ExplainFailed(fmt.Errorf("%s", res.Message))))
		out.Note = "explain failed, analysis is advisory"
		return out
	}
	plan, _ := res.Data["plan"].(string)
	return Success(reportData(defaultAnalyzer.AnalyzePlan(a.Kind(), plan)))
}

func reportData(r *sqlanalyzer.Report) map[string]interface{} {
	data := map[string]interface{}{
		"should_confirm":      r.ShouldConfirm,
		"issues":              r.Issues,
		"performance_summary": r.PerformanceSummary,
	}
	if r.ExplainError != "" {
		data["explain_error"] = r.ExplainError
	}
	return data
}

// FKEdge is one foreign-key dependency: From references To.
type FKEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// topoSortTables orders tables so that referenced tables come before their
// referencing tables. Cycles are tolerated by skipping the back-edge;
// tables with no FK edges are appended in the order given.
func topoSortTables(tables []string, edges []FKEdge) []string {
	deps := make(map[string][]string)
	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		known[t] = true
	}
	for _, e := range edges {
		if known[e.From] && known[e.To] && e.From != e.To {
			deps[e.From] = append(deps[e.From], e.To)
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(tables))
	var order []string

	var visit func(t string)
	visit = func(t string) {
		switch state[t] {
		case visiting:
			// Back-edge: cycle detected, break it by skipping.
			return
		case done:
			return
		}
		state[t] = visiting
		for _, dep := range deps[t] {
			visit(dep)
		}
		state[t] = done
		order = append(order, t)
	}

	for _, t := range tables {
		visit(t)
	}
	return order
}

// qualify joins schema and object name when a schema is given.
func qualify(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// mutationPrecheck implements the shared execute_sql gate: read-only
// statements run immediately, mutations require confirmation.
func mutationPrecheck(stmt string, confirmed bool, extraReadOnly ...string) *Result {
	if isReadOnly(stmt, extraReadOnly...) {
		return nil
	}
	if !confirmed {
		return PendingConfirmation(stmt)
	}
	return nil
}

// hasPrefixFold reports whether s starts with prefix, case-insensitively.
func hasPrefixFold(s, prefix string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
