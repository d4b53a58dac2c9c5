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

	_ "github.com/microsoft/go-mssqldb" // registers "sqlserver" driver
)

type sqlserverAdapter struct {
	cfg      Config
	db       *sql.DB
	features map[string]bool
	version  string
}

func newSQLServer(cfg Config) (*sqlserverAdapter, error) {
	dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlserver connection: %w", err)
	}

	a := &sqlserverAdapter{cfg: cfg, db: db, features: map[string]bool{}}
	a.detectFeatures(context.Background())
	return a, nil
}

func (a *sqlserverAdapter) detectFeatures(ctx context.Context) {
	_ = a.db.QueryRowContext(ctx, "SELECT @@VERSION").Scan(&a.version)

	var actualState int
	if err := a.db.QueryRowContext(ctx,
		"SELECT actual_state FROM sys.database_query_store_options").Scan(&actualState); err == nil {
		a.features["has_query_store"] = actualState > 0
	}

	var edition string
	if err := a.db.QueryRowContext(ctx,
		"SELECT CAST(SERVERPROPERTY('Edition') AS NVARCHAR(128))").Scan(&edition); err == nil {
		a.features["is_enterprise"] = strings.Contains(edition, "Enterprise")
	}
}

func (a *sqlserverAdapter) Kind() string { return "sqlserver" }

func (a *sqlserverAdapter) Close() error { return a.db.Close() }

func (a *sqlserverAdapter) GetDBInfo(ctx context.Context) *Result {
	flags := make(map[string]interface{}, len(a.features))
	for k, v := range a.features {
		flags[k] = v
	}
	return Success(map[string]interface{}{
		"kind":            "sqlserver",
		"version":         a.version,
		"version_display": a.version,
		"features":        flags,
	})
}

func (a *sqlserverAdapter) schemaOrDefault(schema string) string {
	if schema == "" {
		return "dbo"
	}
	return schema
}

func (a *sqlserverAdapter) ListTables(ctx context.Context, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = @p1
		ORDER BY table_name`, a.schemaOrDefault(schema))
}

func (a *sqlserverAdapter) DescribeTable(ctx context.Context, table, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT column_name, data_type, is_nullable, column_default,
		       character_maximum_length, numeric_precision
		FROM information_schema.columns
		WHERE table_schema = @p1 AND table_name = @p2
		ORDER BY ordinal_position`, a.schemaOrDefault(schema), table)
}

func (a *sqlserverAdapter) GetSampleData(ctx context.Context, table, schema string, limit int) *Result {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return queryResult(ctx, a.db,
		fmt.Sprintf("SELECT TOP %d * FROM [%s].[%s]", limit, a.schemaOrDefault(schema), table))
}

func (a *sqlserverAdapter) ListDatabases(ctx context.Context) *Result {
	return queryResult(ctx, a.db,
		"SELECT name FROM sys.databases WHERE database_id > 4 ORDER BY name")
}

func (a *sqlserverAdapter) ExecuteSafeQuery(ctx context.Context, stmt string) *Result {
	stmt = normalizeSafeQuery(stmt)
	if !isReadOnly(stmt) {
		return Errorf("only read-only statements are allowed here; use execute_sql for mutations")
	}
	return queryResult(ctx, a.db, stmt)
}

// mssqlNonTransactional lists statements SQL Server refuses inside an
// explicit transaction.
var mssqlNonTransactional = []string{
	"CREATE DATABASE", "DROP DATABASE", "ALTER DATABASE", "BACKUP", "RESTORE",
}

func (a *sqlserverAdapter) ExecuteSQL(ctx context.Context, stmt string, confirmed bool) *Result {
	if res := mutationPrecheck(stmt, confirmed); res != nil {
		return res
	}
	if isReadOnly(stmt) {
		return queryResult(ctx, a.db, stmt)
	}
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	for _, prefix := range mssqlNonTransactional {
		if strings.HasPrefix(upper, prefix) {
			return execAutocommit(ctx, a.db, stmt)
		}
	}
	return execInTx(ctx, a.db, stmt)
}

func (a *sqlserverAdapter) RunExplain(ctx context.Context, stmt string, analyze bool) *Result {
	// Plan output arrives as an extra result set after SET SHOWPLAN/STATISTICS.
	mode := "SHOWPLAN_ALL"
	if analyze {
		mode = "STATISTICS PROFILE"
	}

	var cols []string
	var rowMaps []map[string]interface{}
	err := withRetry(ctx, func() error {
		conn, err := a.db.Conn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET %s ON", mode)); err != nil {
			return err
		}
		defer conn.ExecContext(ctx, fmt.Sprintf("SET %s OFF", mode)) //nolint:errcheck

		rows, err := conn.QueryContext(ctx, stmt)
		if err != nil {
			return err
		}
		defer rows.Close()
		cols, rowMaps, err = collectRows(rows)
		return err
	})
	if err != nil {
		return Errorf("explain failed: %v", err)
	}

	res := Success(map[string]interface{}{
		"columns":   cols,
		"rows":      rowMaps,
		"row_count": len(rowMaps),
	})
	res.Data["plan"] = flattenPlanRows(res.Data)
	return res
}

func (a *sqlserverAdapter) CreateIndex(ctx context.Context, stmt string, concurrent bool) *Result {
	if !hasPrefixFold(stmt, "CREATE INDEX") && !hasPrefixFold(stmt, "CREATE UNIQUE INDEX") &&
		!hasPrefixFold(stmt, "CREATE NONCLUSTERED INDEX") && !hasPrefixFold(stmt, "CREATE CLUSTERED INDEX") {
		return Errorf("statement must start with CREATE INDEX")
	}
	if concurrent {
		if !a.features["is_enterprise"] {
			return Errorf("online index builds require SQL Server Enterprise edition")
		}
		if !strings.Contains(strings.ToUpper(stmt), "ONLINE") {
			stmt = strings.TrimRight(strings.TrimSpace(stmt), ";") + " WITH (ONLINE = ON)"
		}
	}
	return execAutocommit(ctx, a.db, stmt)
}

func (a *sqlserverAdapter) CheckQueryPerformance(ctx context.Context, stmt string) *Result {
	return checkQueryPerformance(ctx, a, stmt)
}

func (a *sqlserverAdapter) AnalyzeTable(ctx context.Context, table, schema string) *Result {
	return execAutocommit(ctx, a.db,
		fmt.Sprintf("UPDATE STATISTICS [%s].[%s]", a.schemaOrDefault(schema), table))
}

func (a *sqlserverAdapter) CheckIndexUsage(ctx context.Context, table, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT i.name AS index_name, s.user_seeks, s.user_scans, s.user_lookups, s.user_updates
		FROM sys.indexes i
		LEFT JOIN sys.dm_db_index_usage_stats s
		  ON i.object_id = s.object_id AND i.index_id = s.index_id
		WHERE i.object_id = OBJECT_ID(@p1)
		ORDER BY i.name`, a.schemaOrDefault(schema)+"."+table)
}

func (a *sqlserverAdapter) GetTableStats(ctx context.Context, table, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT t.name AS table_name, p.rows AS row_count,
		       SUM(au.total_pages) * 8 AS total_kb
		FROM sys.tables t
		JOIN sys.partitions p ON t.object_id = p.object_id AND p.index_id IN (0, 1)
		JOIN sys.allocation_units au ON p.partition_id = au.container_id
		WHERE t.object_id = OBJECT_ID(@p1)
		GROUP BY t.name, p.rows`, a.schemaOrDefault(schema)+"."+table)
}

func (a *sqlserverAdapter) GetRunningQueries(ctx context.Context) *Result {
	return queryResult(ctx, a.db, `
		SELECT r.session_id, r.status, r.command, r.total_elapsed_time AS duration_ms,
		       t.text AS query
		FROM sys.dm_exec_requests r
		CROSS APPLY sys.dm_exec_sql_text(r.sql_handle) t
		WHERE r.session_id <> @@SPID
		ORDER BY r.total_elapsed_time DESC`)
}

func (a *sqlserverAdapter) IdentifySlowQueries(ctx context.Context, minMs, limit int) *Result {
	if limit <= 0 {
		limit = 20
	}
	if a.features["has_query_store"] {
		return queryResult(ctx, a.db, `
			SELECT TOP (@p2) qt.query_sql_text AS query, rs.count_executions AS calls,
			       rs.avg_duration / 1000 AS mean_ms
			FROM sys.query_store_query q
			JOIN sys.query_store_query_text qt ON q.query_text_id = qt.query_text_id
			JOIN sys.query_store_plan p ON q.query_id = p.query_id
			JOIN sys.query_store_runtime_stats rs ON p.plan_id = rs.plan_id
			WHERE rs.avg_duration / 1000 >= @p1
			ORDER BY rs.avg_duration DESC`, minMs, limit)
	}
	res := queryResult(ctx, a.db, `
		SELECT TOP (@p2) t.text AS query, s.execution_count AS calls,
		       s.total_elapsed_time / NULLIF(s.execution_count, 0) / 1000 AS mean_ms
		FROM sys.dm_exec_query_stats s
		CROSS APPLY sys.dm_exec_sql_text(s.sql_handle) t
		WHERE s.total_elapsed_time / NULLIF(s.execution_count, 0) / 1000 >= @p1
		ORDER BY s.total_elapsed_time / NULLIF(s.execution_count, 0) DESC`, minMs, limit)
	if res.Status == StatusSuccess {
		res.Note = "Query Store is disabled; falling back to the plan cache (dm_exec_query_stats)"
	}
	return res
}

func (a *sqlserverAdapter) GetAllObjects(ctx context.Context, schema string, objectTypes []string) *Result {
	schema = a.schemaOrDefault(schema)
	wanted := objectTypeSet(objectTypes)
	objects := map[string][]string{}

	typeFilters := map[string]string{
		"sequence":  "SO",
		"table":     "U",
		"view":      "V",
		"function":  "FN', 'TF', 'IF",
		"procedure": "P",
		"trigger":   "TR",
	}

	err := withRetry(ctx, func() error {
		for objType, filter := range typeFilters {
			if !wanted[objType] {
				continue
			}
			query := fmt.Sprintf(`
				SELECT o.name
				FROM sys.objects o
				JOIN sys.schemas s ON o.schema_id = s.schema_id
				WHERE s.name = @p1 AND o.type IN ('%s')
				ORDER BY o.name`, filter)
			rows, err := a.db.QueryContext(ctx, query, schema)
			if err != nil {
				return err
			}
			for rows.Next() {
				var name string
				if err := rows.Scan(&name); err != nil {
					rows.Close()
					return err
				}
				objects[objType] = append(objects[objType], name)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()
		}

		if wanted["index"] {
			rows, err := a.db.QueryContext(ctx, `
				SELECT i.name
				FROM sys.indexes i
				JOIN sys.objects o ON i.object_id = o.object_id
				JOIN sys.schemas s ON o.schema_id = s.schema_id
				WHERE s.name = @p1 AND i.name IS NOT NULL AND i.is_primary_key = 0
				ORDER BY i.name`, schema)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var name string
				if err := rows.Scan(&name); err != nil {
					return err
				}
				objects["index"] = append(objects["index"], name)
			}
			return rows.Err()
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

func (a *sqlserverAdapter) GetObjectDDL(ctx context.Context, objectType, name, schema string) *Result {
	schema = a.schemaOrDefault(schema)

	switch objectType {
	case "view", "function", "procedure", "trigger":
		var ddl sql.NullString
		err := withRetry(ctx, func() error {
			return a.db.QueryRowContext(ctx,
				"SELECT OBJECT_DEFINITION(OBJECT_ID(@p1))", schema+"."+name).Scan(&ddl)
		})
		if err != nil || !ddl.Valid {
			return Errorf("failed to fetch DDL for %s %s: %v", objectType, name, err)
		}
		return Success(map[string]interface{}{"object_type": objectType, "name": name, "ddl": ddl.String})
	case "table":
		// SQL Server has no SHOW CREATE TABLE; reconstruct from metadata.
		res := a.DescribeTable(ctx, name, schema)
		if res.Status != StatusSuccess {
			return res
		}
		rows, _ := res.Data["rows"].([]map[string]interface{})
		var cols []string
		for _, row := range rows {
			col := fmt.Sprintf("    [%v] %v", row["column_name"], row["data_type"])
			if row["is_nullable"] == "NO" {
				col += " NOT NULL"
			}
			cols = append(cols, col)
		}
		ddl := fmt.Sprintf("CREATE TABLE [%s].[%s] (\n%s\n)", schema, name, strings.Join(cols, ",\n"))
		return Success(map[string]interface{}{"object_type": objectType, "name": name, "ddl": ddl})
	case "sequence":
		ddl := fmt.Sprintf("CREATE SEQUENCE [%s].[%s]", schema, name)
		return Success(map[string]interface{}{"object_type": objectType, "name": name, "ddl": ddl})
	default:
		return Errorf("unsupported object type %q", objectType)
	}
}

func (a *sqlserverAdapter) GetObjectDependencies(ctx context.Context, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT OBJECT_NAME(d.referencing_id) AS dependent_object,
		       d.referenced_entity_name AS depends_on
		FROM sys.sql_expression_dependencies d
		JOIN sys.objects o ON d.referencing_id = o.object_id
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		WHERE s.name = @p1
		ORDER BY dependent_object`, a.schemaOrDefault(schema))
}

func (a *sqlserverAdapter) GetForeignKeyDependencies(ctx context.Context, schema string) *Result {
	schema = a.schemaOrDefault(schema)

	var edges []FKEdge
	var tables []string
	err := withRetry(ctx, func() error {
		edges = edges[:0]
		tables = tables[:0]

		rows, err := a.db.QueryContext(ctx, `
			SELECT OBJECT_NAME(fk.parent_object_id) AS table_name,
			       OBJECT_NAME(fk.referenced_object_id) AS referenced_table
			FROM sys.foreign_keys fk
			JOIN sys.objects o ON fk.parent_object_id = o.object_id
			JOIN sys.schemas s ON o.schema_id = s.schema_id
			WHERE s.name = @p1`, schema)
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
			SELECT t.name FROM sys.tables t
			JOIN sys.schemas s ON t.schema_id = s.schema_id
			WHERE s.name = @p1
			ORDER BY t.name`, schema)
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
