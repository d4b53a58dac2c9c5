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

package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/pkg/store"
)

func TestConvertMySQLToPostgresTable(t *testing.T) {
	src := "CREATE TABLE `users` (\n" +
		"  id INT UNSIGNED AUTO_INCREMENT,\n" +
		"  active TINYINT(1) DEFAULT 1,\n" +
		"  bio LONGTEXT,\n" +
		"  avatar MEDIUMBLOB,\n" +
		"  prefs JSON,\n" +
		"  created DATETIME,\n" +
		"  PRIMARY KEY (id)\n" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 AUTO_INCREMENT=100"

	conv, err := ConvertDDL(src, store.EngineMySQL, store.EnginePostgreSQL, store.ObjectTable)
	require.NoError(t, err)
	assert.Empty(t, conv.SkipReason)

	assert.Contains(t, conv.DDL, "id SERIAL")
	assert.Contains(t, conv.DDL, "active BOOLEAN")
	assert.Contains(t, conv.DDL, "bio TEXT")
	assert.Contains(t, conv.DDL, "avatar BYTEA")
	assert.Contains(t, conv.DDL, "prefs JSONB")
	assert.Contains(t, conv.DDL, "created TIMESTAMP")
	assert.Contains(t, conv.DDL, `"users"`)
	assert.NotContains(t, conv.DDL, "ENGINE=")
	assert.NotContains(t, conv.DDL, "CHARSET")
	assert.NotContains(t, conv.DDL, "AUTO_INCREMENT")
	assert.NotEmpty(t, conv.Notes)
}

func TestConvertMySQLEnumWithNote(t *testing.T) {
	src := "CREATE TABLE t (status ENUM('a','b','c') NOT NULL)"

	conv, err := ConvertDDL(src, store.EngineMySQL, store.EnginePostgreSQL, store.ObjectTable)
	require.NoError(t, err)
	assert.Contains(t, conv.DDL, "VARCHAR(50)")

	found := false
	for _, note := range conv.Notes {
		if note == "ENUM flattened to VARCHAR(50), add a CHECK constraint manually" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestConvertMySQLFulltextIndexSkipped(t *testing.T) {
	src := "CREATE FULLTEXT INDEX idx_body ON posts (body)"

	conv, err := ConvertDDL(src, store.EngineMySQL, store.EnginePostgreSQL, store.ObjectIndex)
	require.NoError(t, err)
	assert.Empty(t, conv.DDL)
	assert.Contains(t, conv.SkipReason, "not supported")
}

func TestConvertMySQLToGaussDBUsesSamePack(t *testing.T) {
	conv, err := ConvertDDL("CREATE TABLE t (n TINYINT(1))", store.EngineMySQL, store.EngineGaussDB, store.ObjectTable)
	require.NoError(t, err)
	assert.Contains(t, conv.DDL, "BOOLEAN")
}

func TestConvertOracleToPostgres(t *testing.T) {
	src := "CREATE TABLE emp (id NUMBER(10), total NUMBER(12,2), name VARCHAR2(80), notes CLOB, photo BLOB, hired DATE DEFAULT SYSDATE)"

	conv, err := ConvertDDL(src, store.EngineOracle, store.EnginePostgreSQL, store.ObjectTable)
	require.NoError(t, err)
	assert.Contains(t, conv.DDL, "id INTEGER")
	assert.Contains(t, conv.DDL, "NUMERIC(12,2)")
	assert.Contains(t, conv.DDL, "VARCHAR(80)")
	assert.Contains(t, conv.DDL, "notes TEXT")
	assert.Contains(t, conv.DDL, "photo BYTEA")
	assert.Contains(t, conv.DDL, "CURRENT_TIMESTAMP")
}

func TestConvertOracleToGaussDBPackages(t *testing.T) {
	src := "CREATE PROCEDURE p AS BEGIN DBMS_OUTPUT.PUT_LINE(DBMS_RANDOM.VALUE); IF x ! = y THEN NULL; END IF; END;"

	conv, err := ConvertDDL(src, store.EngineOracle, store.EngineGaussDB, store.ObjectProcedure)
	require.NoError(t, err)
	assert.Contains(t, conv.DDL, "DBE_OUTPUT.PUT_LINE")
	assert.Contains(t, conv.DDL, "DBE_RANDOM.GET_TABLE_VALUE")
	assert.Contains(t, conv.DDL, "x != y")
	assert.NotContains(t, conv.DDL, "DBMS_")
}

func TestConvertOracleConnectByFlagged(t *testing.T) {
	src := "CREATE VIEW tree AS SELECT id FROM nodes CONNECT BY PRIOR id = parent_id"

	conv, err := ConvertDDL(src, store.EngineOracle, store.EnginePostgreSQL, store.ObjectView)
	require.NoError(t, err)

	flagged := false
	for _, note := range conv.Notes {
		if note == "CONNECT BY requires a manual rewrite as WITH RECURSIVE" {
			flagged = true
		}
	}
	assert.True(t, flagged)
}

func TestConvertSameDialectPassthrough(t *testing.T) {
	src := "CREATE TABLE t (id INT)"
	conv, err := ConvertDDL(src, store.EnginePostgreSQL, store.EnginePostgreSQL, store.ObjectTable)
	require.NoError(t, err)
	assert.Equal(t, src, conv.DDL)
	assert.Empty(t, conv.Notes)
}

func TestConvertUnknownPairErrors(t *testing.T) {
	_, err := ConvertDDL("CREATE TABLE t (id INT)", store.EngineSQLServer, store.EngineOracle, store.ObjectTable)
	assert.Error(t, err)
}
