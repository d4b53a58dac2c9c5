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
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*postgresAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &postgresAdapter{kind: "postgresql", db: db, features: map[string]bool{}}, mock
}

func TestExecuteSQLRequiresConfirmation(t *testing.T) {
	a, mock := newMockPostgres(t)

	res := a.ExecuteSQL(context.Background(), "UPDATE users SET active = false", false)
	assert.Equal(t, StatusPendingConfirmation, res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSQLConfirmedRunsInTransaction(t *testing.T) {
	a, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET active = false WHERE id = 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res := a.ExecuteSQL(context.Background(), "UPDATE users SET active = false WHERE id = 1", true)
	require.Equal(t, StatusSuccess, res.Status)
	assert.EqualValues(t, 1, res.AffectedRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSQLRollsBackOnError(t *testing.T) {
	a, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM users").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	res := a.ExecuteSQL(context.Background(), "DELETE FROM users", true)
	assert.Equal(t, StatusError, res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSQLNonTransactionalDDL(t *testing.T) {
	a, mock := newMockPostgres(t)

	// VACUUM must not be wrapped in a transaction.
	mock.ExpectExec("VACUUM users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	res := a.ExecuteSQL(context.Background(), "VACUUM users", true)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSafeQueryPrependsSelect(t *testing.T) {
	a, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "ada"))

	res := a.ExecuteSafeQuery(context.Background(), "id, name FROM users")
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, res.Data["row_count"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSafeQueryRejectsMutation(t *testing.T) {
	a, mock := newMockPostgres(t)

	res := a.ExecuteSafeQuery(context.Background(), "DROP TABLE users")
	assert.Equal(t, StatusError, res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIndexConcurrentRewrite(t *testing.T) {
	a, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX CONCURRENTLY idx_users_email ON users (email)")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	res := a.CreateIndex(context.Background(), "CREATE INDEX idx_users_email ON users (email)", true)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIndexRejectsOtherStatements(t *testing.T) {
	a, _ := newMockPostgres(t)

	res := a.CreateIndex(context.Background(), "DROP INDEX idx_users_email", false)
	assert.Equal(t, StatusError, res.Status)
}

func TestIdentifySlowQueriesFallbackNote(t *testing.T) {
	a, mock := newMockPostgres(t)
	a.features["has_pg_stat_statements"] = false

	mock.ExpectQuery("pg_stat_activity").
		WillReturnRows(sqlmock.NewRows([]string{"pid", "query", "state", "duration_ms"}))

	res := a.IdentifySlowQueries(context.Background(), 1000, 10)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.Note, "pg_stat_statements")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunExplainFlattensPlan(t *testing.T) {
	a, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("EXPLAIN (FORMAT TEXT) SELECT * FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).
			AddRow("Seq Scan on users  (cost=0.00..35.50 rows=2550 width=4)"))

	res := a.RunExplain(context.Background(), "SELECT * FROM users", false)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.Data["plan"], "Seq Scan on users")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForeignKeyDependenciesOrder(t *testing.T) {
	a, mock := newMockPostgres(t)

	mock.ExpectQuery("FOREIGN KEY").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "referenced_table"}).
			AddRow("orders", "users"))
	mock.ExpectQuery("information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("orders").AddRow("users"))

	res := a.GetForeignKeyDependencies(context.Background(), "public")
	require.Equal(t, StatusSuccess, res.Status)

	order := res.Data["table_order"].([]string)
	assert.Equal(t, []string{"users", "orders"}, order)
}
