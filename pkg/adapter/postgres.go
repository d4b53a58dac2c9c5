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
	"fmt"
	"strings"

	_ "github.com/lib/pq" // registers "postgres" driver

	"database/sql"
)

// postgresAdapter serves both PostgreSQL and GaussDB (which speaks the
// PostgreSQL protocol with a diverged system catalog).
type postgresAdapter struct {
	kind     string
	cfg      Config
	db       *sql.DB
	features map[string]bool
	version  string
}

func newPostgres(cfg Config) (*postgresAdapter, error) {
	return openPostgresLike(cfg, "postgresql")
}

func newGaussDB(cfg Config) (*postgresAdapter, error) {
	return openPostgresLike(cfg, "gaussdb")
}

func openPostgresLike(cfg Config, kind string) (*postgresAdapter, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", kind, err)
	}

	a := &postgresAdapter{kind: kind, cfg: cfg, db: db, features: map[string]bool{}}
	a.detectFeatures(context.Background())
	return a, nil
}

// detectFeatures runs once at connect time; results are cached for the
// adapter's lifetime.
func (a *postgresAdapter) detectFeatures(ctx context.Context) {
	_ = a.db.QueryRowContext(ctx, "SELECT version()").Scan(&a.version)

	var count int
	if err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pg_extension WHERE extname = 'pg_stat_statements'",
	).Scan(&count); err == nil {
		a.features["has_pg_stat_statements"] = count > 0
	}

	if a.kind == "gaussdb" {
		// Distributed deployments expose pgxc_node.
		var nodes int
		err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pgxc_node").Scan(&nodes)
		a.features["is_distributed"] = err == nil && nodes > 1
	}
}

func (a *postgresAdapter) Kind() string { return a.kind }

func (a *postgresAdapter) Close() error { return a.db.Close() }

func (a *postgresAdapter) GetDBInfo(ctx context.Context) *Result {
	var numeric string
	_ = a.db.QueryRowContext(ctx, "SHOW server_version").Scan(&numeric)

	flags := make(map[string]interface{}, len(a.features))
	for k, v := range a.features {
		flags[k] = v
	}
	return Success(map[string]interface{}{
		"kind":            a.kind,
		"version":         numeric,
		"version_display": a.version,
		"features":        flags,
	})
}

func (a *postgresAdapter) ListTables(ctx context.Context, schema string) *Result {
	if schema == "" {
		schema = "public"
	}
	return queryResult(ctx, a.db, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name`, schema)
}

func (a *postgresAdapter) DescribeTable(ctx context.Context, table, schema string) *Result {
	if schema == "" {
		schema = "public"
	}
	return queryResult(ctx, a.db, `
		SELECT column_name, data_type, is_nullable, column_default,
		       character_maximum_length, numeric_precision
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
}

func (a *postgresAdapter) GetSampleData(ctx context.Context, table, schema string, limit int) *Result {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return queryResult(ctx, a.db,
		fmt.Sprintf("SELECT * FROM %s LIMIT %d", pgQuote(schema, table), limit))
}

func (a *postgresAdapter) ListDatabases(ctx context.Context) *Result {
	return queryResult(ctx, a.db,
		"SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname")
}

func (a *postgresAdapter) ExecuteSafeQuery(ctx context.Context, stmt string) *Result {
	stmt = normalizeSafeQuery(stmt)
	if !isReadOnly(stmt) {
		return Errorf("only read-only statements are allowed here; use execute_sql for mutations")
	}
	return queryResult(ctx, a.db, stmt)
}

// pgNonTransactional lists prefixes of statements PostgreSQL refuses to run
// inside a transaction block.
var pgNonTransactional = []string{
	"CREATE DATABASE", "DROP DATABASE", "VACUUM", "CREATE TABLESPACE",
	"DROP TABLESPACE", "ALTER SYSTEM", "REINDEX DATABASE",
	"CREATE INDEX CONCURRENTLY", "DROP INDEX CONCURRENTLY",
}

func (a *postgresAdapter) ExecuteSQL(ctx context.Context, stmt string, confirmed bool) *Result {
	if res := mutationPrecheck(stmt, confirmed); res != nil {
		return res
	}
	if isReadOnly(stmt) {
		return queryResult(ctx, a.db, stmt)
	}
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	for _, prefix := range pgNonTransactional {
		if strings.HasPrefix(upper, prefix) {
			return execAutocommit(ctx, a.db, stmt)
		}
	}
	return execInTx(ctx, a.db, stmt)
}

func (a *postgresAdapter) RunExplain(ctx context.Context, stmt string, analyze bool) *Result {
	prefix := "EXPLAIN (FORMAT TEXT) "
	if analyze {
		prefix = "EXPLAIN (ANALYZE, BUFFERS, FORMAT TEXT) "
	}
	res := queryResult(ctx, a.db, prefix+stmt)
	if res.Status != StatusSuccess {
		return res
	}
	res.Data["plan"] = flattenPlanRows(res.Data)
	return res
}

// flattenPlanRows joins single-column EXPLAIN output rows into one text plan.
func flattenPlanRows(data map[string]interface{}) string {
	rows, _ := data["rows"].([]map[string]interface{})
	var b strings.Builder
	for _, row := range rows {
		for _, v := range row {
			fmt.Fprintf(&b, "%v\n", v)
		}
	}
	return b.String()
}

func (a *postgresAdapter) CreateIndex(ctx context.Context, stmt string, concurrent bool) *Result {
	if !hasPrefixFold(stmt, "CREATE INDEX") && !hasPrefixFold(stmt, "CREATE UNIQUE INDEX") {
		return Errorf("statement must start with CREATE INDEX")
	}
	if concurrent && !strings.Contains(strings.ToUpper(stmt), "CONCURRENTLY") {
		upper := strings.ToUpper(stmt)
		idx := strings.Index(upper, "INDEX")
		stmt = stmt[:idx+len("INDEX")] + " CONCURRENTLY" + stmt[idx+len("INDEX"):]
	}
	if concurrent {
		// CONCURRENTLY cannot run inside a transaction block.
		return execAutocommit(ctx, a.db, stmt)
	}
	return execInTx(ctx, a.db, stmt)
}

func (a *postgresAdapter) CheckQueryPerformance(ctx context.Context, stmt string) *Result {
	return checkQueryPerformance(ctx, a, stmt)
}

func (a *postgresAdapter) AnalyzeTable(ctx context.Context, table, schema string) *Result {
	return execAutocommit(ctx, a.db, "ANALYZE "+pgQuote(schema, table))
}

func (a *postgresAdapter) CheckIndexUsage(ctx context.Context, table, schema string) *Result {
	if schema == "" {
		schema = "public"
	}
	return queryResult(ctx, a.db, `
		SELECT indexrelname AS index_name, idx_scan, idx_tup_read, idx_tup_fetch
		FROM pg_stat_user_indexes
		WHERE schemaname = $1 AND relname = $2
		ORDER BY idx_scan DESC`, schema, table)
}

func (a *postgresAdapter) GetTableStats(ctx context.Context, table, schema string) *Result {
	if schema == "" {
		schema = "public"
	}
	return queryResult(ctx, a.db, `
		SELECT relname AS table_name, n_live_tup, n_dead_tup, seq_scan, idx_scan,
		       pg_size_pretty(pg_total_relation_size(relid)) AS total_size,
		       last_vacuum, last_analyze
		FROM pg_stat_user_tables
		WHERE schemaname = $1 AND relname = $2`, schema, table)
}

func (a *postgresAdapter) GetRunningQueries(ctx context.Context) *Result {
	return queryResult(ctx, a.db, `
		SELECT pid, usename, state, query,
		       EXTRACT(EPOCH FROM (now() - query_start)) * 1000 AS duration_ms
		FROM pg_stat_activity
		WHERE state <> 'idle' AND pid <> pg_backend_pid()
		ORDER BY query_start`)
}

func (a *postgresAdapter) IdentifySlowQueries(ctx context.Context, minMs, limit int) *Result {
	if limit <= 0 {
		limit = 20
	}
	if a.features["has_pg_stat_statements"] {
		return queryResult(ctx, a.db, `
			SELECT query, calls, mean_exec_time AS mean_ms, total_exec_time AS total_ms, rows
			FROM pg_stat_statements
			WHERE mean_exec_time >= $1
			ORDER BY mean_exec_time DESC
			LIMIT $2`, minMs, limit)
	}
	// Without the extension only currently running statements are visible.
	res := queryResult(ctx, a.db, `
		SELECT pid, query, state,
		       EXTRACT(EPOCH FROM (now() - query_start)) * 1000 AS duration_ms
		FROM pg_stat_activity
		WHERE state <> 'idle'
		  AND EXTRACT(EPOCH FROM (now() - query_start)) * 1000 >= $1
		ORDER BY query_start
		LIMIT $2`, minMs, limit)
	if res.Status == StatusSuccess {
		res.Note = "pg_stat_statements is not installed; falling back to pg_stat_activity (live queries only)"
	}
	return res
}

func (a *postgresAdapter) GetAllObjects(ctx context.Context, schema string, objectTypes []string) *Result {
	if schema == "" {
		schema = "public"
	}
	wanted := objectTypeSet(objectTypes)

	objects := map[string][]string{}
	collect := func(objType, query string) error {
		if !wanted[objType] {
			return nil
		}
		rows, err := a.db.QueryContext(ctx, query, schema)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			objects[objType] = append(objects[objType], name)
		}
		return rows.Err()
	}

	steps := []struct{ objType, query string }{
		{"sequence", "SELECT sequence_name FROM information_schema.sequences WHERE sequence_schema = $1 ORDER BY sequence_name"},
		{"table", "SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name"},
		{"index", "SELECT indexname FROM pg_indexes WHERE schemaname = $1 ORDER BY indexname"},
		{"view", "SELECT table_name FROM information_schema.views WHERE table_schema = $1 ORDER BY table_name"},
		{"function", "SELECT routine_name FROM information_schema.routines WHERE routine_schema = $1 AND routine_type = 'FUNCTION' ORDER BY routine_name"},
		{"procedure", "SELECT routine_name FROM information_schema.routines WHERE routine_schema = $1 AND routine_type = 'PROCEDURE' ORDER BY routine_name"},
		{"trigger", "SELECT DISTINCT trigger_name FROM information_schema.triggers WHERE trigger_schema = $1 ORDER BY trigger_name"},
	}

	err := withRetry(ctx, func() error {
		for _, step := range steps {
			if err := collect(step.objType, step.query); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Errorf("failed to enumerate objects: %v", err)
	}

	payload := make(map[string]interface{}, len(objects))
	for k, v := range objects {
		payload[k] = v
	}
	return Success(map[string]interface{}{"schema": schema, "objects": payload})
}

func (a *postgresAdapter) GetObjectDDL(ctx context.Context, objectType, name, schema string) *Result {
	if schema == "" {
		schema = "public"
	}
	var ddl string
	var err error
	switch objectType {
	case "view":
		err = a.db.QueryRowContext(ctx,
			"SELECT pg_get_viewdef(($1 || '.' || $2)::regclass, true)", schema, name).Scan(&ddl)
		if err == nil {
			ddl = fmt.Sprintf("CREATE OR REPLACE VIEW %s.%s AS\n%s", schema, name, ddl)
		}
	case "function", "procedure":
		err = a.db.QueryRowContext(ctx, `
			SELECT pg_get_functiondef(p.oid)
			FROM pg_proc p JOIN pg_namespace n ON n.oid = p.pronamespace
			WHERE n.nspname = $1 AND p.proname = $2
			LIMIT 1`, schema, name).Scan(&ddl)
	case "index":
		err = a.db.QueryRowContext(ctx,
			"SELECT indexdef FROM pg_indexes WHERE schemaname = $1 AND indexname = $2",
			schema, name).Scan(&ddl)
	case "table":
		ddl, err = a.buildTableDDL(ctx, schema, name)
	case "sequence":
		ddl = fmt.Sprintf("CREATE SEQUENCE %s.%s", schema, name)
	default:
		return Errorf("unsupported object type %q", objectType)
	}
	if err != nil {
		return Errorf("failed to fetch DDL for %s %s: %v", objectType, name, err)
	}
	return Success(map[string]interface{}{"object_type": objectType, "name": name, "ddl": ddl})
}

// buildTableDDL reconstructs a CREATE TABLE from the information schema.
// Constraints beyond NOT NULL and defaults are carried as separate objects.
func (a *postgresAdapter) buildTableDDL(ctx context.Context, schema, table string) (string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, COALESCE(column_default, ''),
		       COALESCE(character_maximum_length, 0)
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name, dataType, nullable, def string
		var maxLen int
		if err := rows.Scan(&name, &dataType, &nullable, &def, &maxLen); err != nil {
			return "", err
		}
		col := fmt.Sprintf("    %s %s", name, dataType)
		if maxLen > 0 && !strings.Contains(dataType, "(") {
			col = fmt.Sprintf("    %s %s(%d)", name, dataType, maxLen)
		}
		if def != "" {
			col += " DEFAULT " + def
		}
		if nullable == "NO" {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("table %s.%s not found", schema, table)
	}
	return fmt.Sprintf("CREATE TABLE %s.%s (\n%s\n)", schema, table, strings.Join(cols, ",\n")), nil
}

func (a *postgresAdapter) GetObjectDependencies(ctx context.Context, schema string) *Result {
	if schema == "" {
		schema = "public"
	}
	return queryResult(ctx, a.db, `
		SELECT DISTINCT dependent_ns.nspname AS dependent_schema,
		       dependent_view.relname AS dependent_object,
		       source_table.relname AS depends_on
		FROM pg_depend
		JOIN pg_rewrite ON pg_depend.objid = pg_rewrite.oid
		JOIN pg_class dependent_view ON pg_rewrite.ev_class = dependent_view.oid
		JOIN pg_class source_table ON pg_depend.refobjid = source_table.oid
		JOIN pg_namespace dependent_ns ON dependent_view.relnamespace = dependent_ns.oid
		JOIN pg_namespace source_ns ON source_table.relnamespace = source_ns.oid
		WHERE source_ns.nspname = $1 AND dependent_view.relname <> source_table.relname
		ORDER BY dependent_object`, schema)
}

func (a *postgresAdapter) GetForeignKeyDependencies(ctx context.Context, schema string) *Result {
	if schema == "" {
		schema = "public"
	}

	var edges []FKEdge
	var tables []string
	err := withRetry(ctx, func() error {
		edges = edges[:0]
		tables = tables[:0]

		rows, err := a.db.QueryContext(ctx, `
			SELECT tc.table_name, ccu.table_name AS referenced_table
			FROM information_schema.table_constraints tc
			JOIN information_schema.constraint_column_usage ccu
			  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1`, schema)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e FKEdge
			if err := rows.Scan(&e.From, &e.To); err != nil {
				return err
			}
			edges = append(edges, e)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		trows, err := a.db.QueryContext(ctx, `
			SELECT table_name FROM information_schema.tables
			WHERE table_schema = $1 AND table_type = 'BASE TABLE'
			ORDER BY table_name`, schema)
		if err != nil {
			return err
		}
		defer trows.Close()
		for trows.Next() {
			var t string
			if err := trows.Scan(&t); err != nil {
				return err
			}
			tables = append(tables, t)
		}
		return trows.Err()
	})
	if err != nil {
		return Errorf("failed to read foreign keys: %v", err)
	}

	return Success(map[string]interface{}{
		"edges":       edges,
		"table_order": topoSortTables(tables, edges),
	})
}

func objectTypeSet(objectTypes []string) map[string]bool {
	all := []string{"sequence", "table", "index", "view", "function", "procedure", "trigger"}
	wanted := map[string]bool{}
	if len(objectTypes) == 0 {
		for _, t := range all {
			wanted[t] = true
		}
		return wanted
	}
	for _, t := range objectTypes {
		wanted[strings.ToLower(t)] = true
	}
	return wanted
}

func pgQuote(schema, table string) string {
	if schema == "" {
		schema = "public"
	}
	return fmt.Sprintf("%q.%q", schema, table)
}
