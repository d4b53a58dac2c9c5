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

	_ "github.com/go-sql-driver/mysql" // registers "mysql" driver
)

type mysqlAdapter struct {
	cfg      Config
	db       *sql.DB
	features map[string]bool
	version  string
}

// mysqlReadOnlyExtras are the statement prefixes MySQL additionally treats
// as read-only.
var mysqlReadOnlyExtras = []string{"SHOW", "DESCRIBE", "DESC"}

func newMySQL(cfg Config) (*mysqlAdapter, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	a := &mysqlAdapter{cfg: cfg, db: db, features: map[string]bool{}}
	a.detectFeatures(context.Background())
	return a, nil
}

func (a *mysqlAdapter) detectFeatures(ctx context.Context) {
	_ = a.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&a.version)

	var enabled string
	if err := a.db.QueryRowContext(ctx,
		"SELECT @@performance_schema").Scan(&enabled); err == nil {
		a.features["has_performance_schema"] = enabled == "1"
	}
}

func (a *mysqlAdapter) Kind() string { return "mysql" }

func (a *mysqlAdapter) Close() error { return a.db.Close() }

func (a *mysqlAdapter) GetDBInfo(ctx context.Context) *Result {
	flags := make(map[string]interface{}, len(a.features))
	for k, v := range a.features {
		flags[k] = v
	}
	return Success(map[string]interface{}{
		"kind":            "mysql",
		"version":         a.version,
		"version_display": "MySQL " + a.version,
		"features":        flags,
	})
}

func (a *mysqlAdapter) schemaOrDefault(schema string) string {
	if schema == "" {
		return a.cfg.Database
	}
	return schema
}

func (a *mysqlAdapter) ListTables(ctx context.Context, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name`, a.schemaOrDefault(schema))
}

func (a *mysqlAdapter) DescribeTable(ctx context.Context, table, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT column_name, column_type, is_nullable, column_default, column_key, extra
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, a.schemaOrDefault(schema), table)
}

func (a *mysqlAdapter) GetSampleData(ctx context.Context, table, schema string, limit int) *Result {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return queryResult(ctx, a.db,
		fmt.Sprintf("SELECT * FROM %s LIMIT %d", mysqlQuote(a.schemaOrDefault(schema), table), limit))
}

func (a *mysqlAdapter) ListDatabases(ctx context.Context) *Result {
	return queryResult(ctx, a.db, "SHOW DATABASES")
}

func (a *mysqlAdapter) ExecuteSafeQuery(ctx context.Context, stmt string) *Result {
	stmt = normalizeSafeQuery(stmt, mysqlReadOnlyExtras...)
	if !isReadOnly(stmt, mysqlReadOnlyExtras...) {
		return Errorf("only read-only statements are allowed here; use execute_sql for mutations")
	}
	return queryResult(ctx, a.db, stmt)
}

// mysqlNonTransactional lists statements MySQL implicitly commits, so
// wrapping them in a transaction is pointless.
var mysqlNonTransactional = []string{
	"CREATE DATABASE", "DROP DATABASE", "CREATE TABLE", "DROP TABLE",
	"ALTER TABLE", "CREATE INDEX", "DROP INDEX", "TRUNCATE",
}

func (a *mysqlAdapter) ExecuteSQL(ctx context.Context, stmt string, confirmed bool) *Result {
	if res := mutationPrecheck(stmt, confirmed, mysqlReadOnlyExtras...); res != nil {
		return res
	}
	if isReadOnly(stmt, mysqlReadOnlyExtras...) {
		return queryResult(ctx, a.db, stmt)
	}
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	for _, prefix := range mysqlNonTransactional {
		if strings.HasPrefix(upper, prefix) {
			return execAutocommit(ctx, a.db, stmt)
		}
	}
	return execInTx(ctx, a.db, stmt)
}

func (a *mysqlAdapter) RunExplain(ctx context.Context, stmt string, analyze bool) *Result {
	prefix := "EXPLAIN FORMAT=JSON "
	if analyze {
		prefix = "EXPLAIN ANALYZE "
	}
	res := queryResult(ctx, a.db, prefix+stmt)
	if res.Status != StatusSuccess {
		return res
	}
	res.Data["plan"] = flattenPlanRows(res.Data)
	return res
}

func (a *mysqlAdapter) CreateIndex(ctx context.Context, stmt string, concurrent bool) *Result {
	if !hasPrefixFold(stmt, "CREATE INDEX") && !hasPrefixFold(stmt, "CREATE UNIQUE INDEX") {
		return Errorf("statement must start with CREATE INDEX")
	}
	if concurrent && !strings.Contains(strings.ToUpper(stmt), "ALGORITHM") {
		// MySQL 5.6+ online DDL.
		stmt = strings.TrimRight(strings.TrimSpace(stmt), ";") + " ALGORITHM=INPLACE, LOCK=NONE"
	}
	return execAutocommit(ctx, a.db, stmt)
}

func (a *mysqlAdapter) CheckQueryPerformance(ctx context.Context, stmt string) *Result {
	return checkQueryPerformance(ctx, a, stmt)
}

func (a *mysqlAdapter) AnalyzeTable(ctx context.Context, table, schema string) *Result {
	return execAutocommit(ctx, a.db,
		"ANALYZE TABLE "+mysqlQuote(a.schemaOrDefault(schema), table))
}

func (a *mysqlAdapter) CheckIndexUsage(ctx context.Context, table, schema string) *Result {
	if a.features["has_performance_schema"] {
		return queryResult(ctx, a.db, `
			SELECT index_name, count_star AS accesses, count_read, count_write
			FROM performance_schema.table_io_waits_summary_by_index_usage
			WHERE object_schema = ? AND object_name = ?
			ORDER BY count_star DESC`, a.schemaOrDefault(schema), table)
	}
	res := queryResult(ctx, a.db, `
		SELECT index_name, non_unique, seq_in_index, column_name, cardinality
		FROM information_schema.statistics
		WHERE table_schema = ? AND table_name = ?
		ORDER BY index_name, seq_in_index`, a.schemaOrDefault(schema), table)
	if res.Status == StatusSuccess {
		res.Note = "performance_schema is disabled; showing index definitions without usage counters"
	}
	return res
}

func (a *mysqlAdapter) GetTableStats(ctx context.Context, table, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT table_name, table_rows, data_length, index_length, auto_increment, update_time
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?`, a.schemaOrDefault(schema), table)
}

func (a *mysqlAdapter) GetRunningQueries(ctx context.Context) *Result {
	return queryResult(ctx, a.db, `
		SELECT id, user, host, db, command, time AS duration_s, state, info AS query
		FROM information_schema.processlist
		WHERE command <> 'Sleep' AND info IS NOT NULL
		ORDER BY time DESC`)
}

func (a *mysqlAdapter) IdentifySlowQueries(ctx context.Context, minMs, limit int) *Result {
	if limit <= 0 {
		limit = 20
	}
	if a.features["has_performance_schema"] {
		return queryResult(ctx, a.db, `
			SELECT digest_text AS query, count_star AS calls,
			       avg_timer_wait / 1000000000 AS mean_ms,
			       sum_timer_wait / 1000000000 AS total_ms
			FROM performance_schema.events_statements_summary_by_digest
			WHERE avg_timer_wait / 1000000000 >= ?
			ORDER BY avg_timer_wait DESC
			LIMIT ?`, minMs, limit)
	}
	res := queryResult(ctx, a.db, `
		SELECT id, info AS query, time * 1000 AS duration_ms
		FROM information_schema.processlist
		WHERE command <> 'Sleep' AND info IS NOT NULL AND time * 1000 >= ?
		ORDER BY time DESC
		LIMIT ?`, minMs, limit)
	if res.Status == StatusSuccess {
		res.Note = "performance_schema is disabled; falling back to the processlist (live queries only)"
	}
	return res
}

func (a *mysqlAdapter) GetAllObjects(ctx context.Context, schema string, objectTypes []string) *Result {
	schema = a.schemaOrDefault(schema)
	wanted := objectTypeSet(objectTypes)
	objects := map[string][]string{}

	collect := func(objType, query string, args ...interface{}) error {
		if !wanted[objType] {
			return nil
		}
		rows, err := a.db.QueryContext(ctx, query, args...)
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

	err := withRetry(ctx, func() error {
		// MySQL has no sequences; AUTO_INCREMENT plays that role.
		if err := collect("table",
			"SELECT table_name FROM information_schema.tables WHERE table_schema = ? AND table_type = 'BASE TABLE' ORDER BY table_name", schema); err != nil {
			return err
		}
		if err := collect("index",
			"SELECT DISTINCT index_name FROM information_schema.statistics WHERE table_schema = ? AND index_name <> 'PRIMARY' ORDER BY index_name", schema); err != nil {
			return err
		}
		if err := collect("view",
			"SELECT table_name FROM information_schema.views WHERE table_schema = ? ORDER BY table_name", schema); err != nil {
			return err
		}
		if err := collect("function",
			"SELECT routine_name FROM information_schema.routines WHERE routine_schema = ? AND routine_type = 'FUNCTION' ORDER BY routine_name", schema); err != nil {
			return err
		}
		if err := collect("procedure",
			"SELECT routine_name FROM information_schema.routines WHERE routine_schema = ? AND routine_type = 'PROCEDURE' ORDER BY routine_name", schema); err != nil {
			return err
		}
		return collect("trigger",
			"SELECT trigger_name FROM information_schema.triggers WHERE trigger_schema = ? ORDER BY trigger_name", schema)
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

func (a *mysqlAdapter) GetObjectDDL(ctx context.Context, objectType, name, schema string) *Result {
	schema = a.schemaOrDefault(schema)
	qualified := mysqlQuote(schema, name)

	showDDL := func(stmt string, ddlCol int) (string, error) {
		rows, err := a.db.QueryContext(ctx, stmt)
		if err != nil {
			return "", err
		}
		defer rows.Close()
		if !rows.Next() {
			return "", fmt.Errorf("%s %s not found", objectType, name)
		}
		cols, _ := rows.Columns()
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		if ddlCol >= len(values) {
			return "", fmt.Errorf("unexpected SHOW output shape")
		}
		if b, ok := values[ddlCol].([]byte); ok {
			return string(b), nil
		}
		return fmt.Sprintf("%v", values[ddlCol]), nil
	}

	var ddl string
	var err error
	switch objectType {
	case "table":
		ddl, err = showDDL("SHOW CREATE TABLE "+qualified, 1)
	case "view":
		ddl, err = showDDL("SHOW CREATE VIEW "+qualified, 1)
	case "function":
		ddl, err = showDDL("SHOW CREATE FUNCTION "+qualified, 2)
	case "procedure":
		ddl, err = showDDL("SHOW CREATE PROCEDURE "+qualified, 2)
	case "trigger":
		ddl, err = showDDL("SHOW CREATE TRIGGER "+qualified, 2)
	case "index":
		err = a.db.QueryRowContext(ctx, `
			SELECT CONCAT('CREATE ', IF(non_unique = 0, 'UNIQUE ', ''), 'INDEX ', index_name,
			              ' ON ', table_name, ' (', GROUP_CONCAT(column_name ORDER BY seq_in_index), ')')
			FROM information_schema.statistics
			WHERE table_schema = ? AND index_name = ?
			GROUP BY index_name, non_unique, table_name
			LIMIT 1`, schema, name).Scan(&ddl)
	default:
		return Errorf("unsupported object type %q", objectType)
	}
	if err != nil {
		return Errorf("failed to fetch DDL for %s %s: %v", objectType, name, err)
	}
	return Success(map[string]interface{}{"object_type": objectType, "name": name, "ddl": ddl})
}

func (a *mysqlAdapter) GetObjectDependencies(ctx context.Context, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT table_name AS dependent_object, referenced_table_name AS depends_on
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND referenced_table_name IS NOT NULL
		GROUP BY table_name, referenced_table_name
		ORDER BY table_name`, a.schemaOrDefault(schema))
}

func (a *mysqlAdapter) GetForeignKeyDependencies(ctx context.Context, schema string) *Result {
	schema = a.schemaOrDefault(schema)

	var edges []FKEdge
	var tables []string
	err := withRetry(ctx, func() error {
		edges = edges[:0]
		tables = tables[:0]

		rows, err := a.db.QueryContext(ctx, `
			SELECT DISTINCT table_name, referenced_table_name
			FROM information_schema.key_column_usage
			WHERE table_schema = ? AND referenced_table_name IS NOT NULL`, schema)
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
			WHERE table_schema = ? AND table_type = 'BASE TABLE'
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

func mysqlQuote(schema, table string) string {
	return fmt.Sprintf("`%s`.`%s`", schema, table)
}
