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

	_ "github.com/sijms/go-ora/v2" // registers "oracle" driver
)

type oracleAdapter struct {
	cfg      Config
	db       *sql.DB
	features map[string]bool
	version  string
}

func newOracle(cfg Config) (*oracleAdapter, error) {
	dsn := fmt.Sprintf("oracle://%s:%s@%s:%d/%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	db, err := sql.Open("oracle", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open oracle connection: %w", err)
	}

	a := &oracleAdapter{cfg: cfg, db: db, features: map[string]bool{}}
	a.detectFeatures(context.Background())
	return a, nil
}

func (a *oracleAdapter) detectFeatures(ctx context.Context) {
	_ = a.db.QueryRowContext(ctx,
		"SELECT banner FROM v$version WHERE ROWNUM = 1").Scan(&a.version)

	// DBA_* views need elevated privileges; probe once and remember.
	var count int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM dba_tables WHERE ROWNUM = 1").Scan(&count)
	a.features["has_dba_views"] = err == nil

	err = a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM v$sql WHERE ROWNUM = 1").Scan(&count)
	a.features["has_vsql"] = err == nil
}

func (a *oracleAdapter) Kind() string { return "oracle" }

func (a *oracleAdapter) Close() error { return a.db.Close() }

func (a *oracleAdapter) GetDBInfo(ctx context.Context) *Result {
	flags := make(map[string]interface{}, len(a.features))
	for k, v := range a.features {
		flags[k] = v
	}
	return Success(map[string]interface{}{
		"kind":            "oracle",
		"version":         a.version,
		"version_display": a.version,
		"features":        flags,
	})
}

// schemaOrUser defaults the schema to the connected user, which is Oracle's
// notion of a schema.
func (a *oracleAdapter) schemaOrUser(schema string) string {
	if schema == "" {
		return strings.ToUpper(a.cfg.Username)
	}
	return strings.ToUpper(schema)
}

func (a *oracleAdapter) ListTables(ctx context.Context, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT table_name, 'BASE TABLE' AS table_type
		FROM all_tables
		WHERE owner = :1
		ORDER BY table_name`, a.schemaOrUser(schema))
}

func (a *oracleAdapter) DescribeTable(ctx context.Context, table, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT column_name, data_type, data_length, data_precision, data_scale, nullable, data_default
		FROM all_tab_columns
		WHERE owner = :1 AND table_name = :2
		ORDER BY column_id`, a.schemaOrUser(schema), strings.ToUpper(table))
}

func (a *oracleAdapter) GetSampleData(ctx context.Context, table, schema string, limit int) *Result {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return queryResult(ctx, a.db,
		fmt.Sprintf("SELECT * FROM %s.%s FETCH FIRST %d ROWS ONLY",
			a.schemaOrUser(schema), strings.ToUpper(table), limit))
}

func (a *oracleAdapter) ListDatabases(ctx context.Context) *Result {
	// Oracle exposes schemas (users), not databases.
	res := queryResult(ctx, a.db,
		"SELECT username FROM all_users ORDER BY username")
	if res.Status == StatusSuccess {
		res.Note = "Oracle lists schemas (users) rather than databases"
	}
	return res
}

func (a *oracleAdapter) ExecuteSafeQuery(ctx context.Context, stmt string) *Result {
	stmt = normalizeSafeQuery(stmt)
	if !isReadOnly(stmt) {
		return Errorf("only read-only statements are allowed here; use execute_sql for mutations")
	}
	return queryResult(ctx, a.db, stmt)
}

// oracleNonTransactional lists DDL prefixes; Oracle implicitly commits all
// DDL, so transactional wrapping is meaningless for these.
var oracleNonTransactional = []string{
	"CREATE", "DROP", "ALTER", "TRUNCATE", "GRANT", "REVOKE",
}

func (a *oracleAdapter) ExecuteSQL(ctx context.Context, stmt string, confirmed bool) *Result {
	if res := mutationPrecheck(stmt, confirmed); res != nil {
		return res
	}
	if isReadOnly(stmt) {
		return queryResult(ctx, a.db, stmt)
	}
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	for _, prefix := range oracleNonTransactional {
		if strings.HasPrefix(upper, prefix) {
			return execAutocommit(ctx, a.db, stmt)
		}
	}
	return execInTx(ctx, a.db, stmt)
}

func (a *oracleAdapter) RunExplain(ctx context.Context, stmt string, analyze bool) *Result {
	// Oracle has no EXPLAIN ANALYZE; the plan table is the only native form.
	if err := withRetry(ctx, func() error {
		_, err := a.db.ExecContext(ctx, "EXPLAIN PLAN FOR "+stmt)
		return err
	}); err != nil {
		return Errorf("explain failed: %v", err)
	}

	res := queryResult(ctx, a.db,
		"SELECT plan_table_output FROM TABLE(DBMS_XPLAN.DISPLAY())")
	if res.Status != StatusSuccess {
		return res
	}
	res.Data["plan"] = flattenPlanRows(res.Data)
	if analyze {
		res.Note = "Oracle does not support EXPLAIN ANALYZE; estimated plan shown"
	}
	return res
}

func (a *oracleAdapter) CreateIndex(ctx context.Context, stmt string, concurrent bool) *Result {
	if !hasPrefixFold(stmt, "CREATE INDEX") && !hasPrefixFold(stmt, "CREATE UNIQUE INDEX") {
		return Errorf("statement must start with CREATE INDEX")
	}
	if concurrent && !strings.Contains(strings.ToUpper(stmt), "ONLINE") {
		stmt = strings.TrimRight(strings.TrimSpace(stmt), ";") + " ONLINE"
	}
	return execAutocommit(ctx, a.db, stmt)
}

func (a *oracleAdapter) CheckQueryPerformance(ctx context.Context, stmt string) *Result {
	return checkQueryPerformance(ctx, a, stmt)
}

func (a *oracleAdapter) AnalyzeTable(ctx context.Context, table, schema string) *Result {
	stmt := fmt.Sprintf(
		"BEGIN DBMS_STATS.GATHER_TABLE_STATS(ownname => '%s', tabname => '%s'); END;",
		a.schemaOrUser(schema), strings.ToUpper(table))
	return execAutocommit(ctx, a.db, stmt)
}

func (a *oracleAdapter) CheckIndexUsage(ctx context.Context, table, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT index_name, index_type, uniqueness, status, last_analyzed
		FROM all_indexes
		WHERE table_owner = :1 AND table_name = :2
		ORDER BY index_name`, a.schemaOrUser(schema), strings.ToUpper(table))
}

func (a *oracleAdapter) GetTableStats(ctx context.Context, table, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT table_name, num_rows, blocks, avg_row_len, last_analyzed
		FROM all_tables
		WHERE owner = :1 AND table_name = :2`, a.schemaOrUser(schema), strings.ToUpper(table))
}

func (a *oracleAdapter) GetRunningQueries(ctx context.Context) *Result {
	return queryResult(ctx, a.db, `
		SELECT s.sid, s.username, s.status, s.sql_id, q.sql_text
		FROM v$session s LEFT JOIN v$sql q ON s.sql_id = q.sql_id
		WHERE s.status = 'ACTIVE' AND s.username IS NOT NULL
		ORDER BY s.sid`)
}

func (a *oracleAdapter) IdentifySlowQueries(ctx context.Context, minMs, limit int) *Result {
	if limit <= 0 {
		limit = 20
	}
	if a.features["has_vsql"] {
		return queryResult(ctx, a.db, `
			SELECT sql_text, executions,
			       elapsed_time / GREATEST(executions, 1) / 1000 AS mean_ms,
			       elapsed_time / 1000 AS total_ms
			FROM v$sql
			WHERE elapsed_time / GREATEST(executions, 1) / 1000 >= :1
			ORDER BY elapsed_time / GREATEST(executions, 1) DESC
			FETCH FIRST :2 ROWS ONLY`, minMs, limit)
	}
	res := queryResult(ctx, a.db, `
		SELECT sid, username, status, last_call_et * 1000 AS duration_ms
		FROM v$session
		WHERE status = 'ACTIVE' AND username IS NOT NULL AND last_call_et * 1000 >= :1
		FETCH FIRST :2 ROWS ONLY`, minMs, limit)
	if res.Status == StatusSuccess {
		res.Note = "V$SQL is not accessible; falling back to V$SESSION (active sessions only)"
	}
	return res
}

func (a *oracleAdapter) GetAllObjects(ctx context.Context, schema string, objectTypes []string) *Result {
	schema = a.schemaOrUser(schema)
	wanted := objectTypeSet(objectTypes)
	objects := map[string][]string{}

	typeMap := map[string]string{
		"sequence":  "SEQUENCE",
		"table":     "TABLE",
		"index":     "INDEX",
		"view":      "VIEW",
		"function":  "FUNCTION",
		"procedure": "PROCEDURE",
		"trigger":   "TRIGGER",
	}

	err := withRetry(ctx, func() error {
		for objType, oracleType := range typeMap {
			if !wanted[objType] {
				continue
			}
			rows, err := a.db.QueryContext(ctx, `
				SELECT object_name FROM all_objects
				WHERE owner = :1 AND object_type = :2
				ORDER BY object_name`, schema, oracleType)
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

func (a *oracleAdapter) GetObjectDDL(ctx context.Context, objectType, name, schema string) *Result {
	oracleType := strings.ToUpper(objectType)
	var ddl string
	err := withRetry(ctx, func() error {
		return a.db.QueryRowContext(ctx,
			"SELECT DBMS_METADATA.GET_DDL(:1, :2, :3) FROM dual",
			oracleType, strings.ToUpper(name), a.schemaOrUser(schema)).Scan(&ddl)
	})
	if err != nil {
		return Errorf("failed to fetch DDL for %s %s: %v", objectType, name, err)
	}
	return Success(map[string]interface{}{"object_type": objectType, "name": name, "ddl": ddl})
}

func (a *oracleAdapter) GetObjectDependencies(ctx context.Context, schema string) *Result {
	return queryResult(ctx, a.db, `
		SELECT name AS dependent_object, type AS dependent_type,
		       referenced_name AS depends_on, referenced_type
		FROM all_dependencies
		WHERE owner = :1 AND referenced_owner = :1
		ORDER BY name`, a.schemaOrUser(schema))
}

func (a *oracleAdapter) GetForeignKeyDependencies(ctx context.Context, schema string) *Result {
	schema = a.schemaOrUser(schema)

	var edges []FKEdge
	var tables []string
	err := withRetry(ctx, func() error {
		edges = edges[:0]
		tables = tables[:0]

		rows, err := a.db.QueryContext(ctx, `
			SELECT c.table_name, r.table_name AS referenced_table
			FROM all_constraints c
			JOIN all_constraints r ON c.r_constraint_name = r.constraint_name AND c.r_owner = r.owner
			WHERE c.constraint_type = 'R' AND c.owner = :1`, schema)
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

		trows, err := a.db.QueryContext(ctx,
			"SELECT table_name FROM all_tables WHERE owner = :1 ORDER BY table_name", schema)
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
