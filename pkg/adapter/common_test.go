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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSafeQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already select", "SELECT * FROM users", "SELECT * FROM users"},
		{"cte untouched", "WITH t AS (SELECT 1) SELECT * FROM t", "WITH t AS (SELECT 1) SELECT * FROM t"},
		{"bare projection with comma", "id, name FROM users", "SELECT id, name FROM users"},
		{"bare projection with paren", "count(*) FROM users", "SELECT count(*) FROM users"},
		{"bare projection with alias", "id AS user_id FROM users", "SELECT id AS user_id FROM users"},
		{"single word untouched", "users", "users"},
		{"lowercase select untouched", "select 1", "select 1"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeSafeQuery(tt.input))
		})
	}
}

func TestIsReadOnly(t *testing.T) {
	assert.True(t, isReadOnly("SELECT 1"))
	assert.True(t, isReadOnly("  with t as (select 1) select * from t"))
	assert.True(t, isReadOnly("EXPLAIN SELECT 1"))
	assert.False(t, isReadOnly("UPDATE users SET x = 1"))
	assert.False(t, isReadOnly("SHOW TABLES"))
	assert.True(t, isReadOnly("SHOW TABLES", "SHOW", "DESCRIBE"))
	assert.True(t, isReadOnly("describe users", "SHOW", "DESCRIBE"))
	assert.False(t, isReadOnly("DELETE FROM users"))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, isTransient(errors.New("i/o timeout")))
	assert.True(t, isTransient(errors.New("Connection reset by peer")))
	assert.False(t, isTransient(errors.New("syntax error at or near SELECT")))
	assert.False(t, isTransient(nil))
}

func TestTopoSortTables(t *testing.T) {
	tables := []string{"orders", "users", "line_items", "audit"}
	edges := []FKEdge{
		{From: "orders", To: "users"},
		{From: "line_items", To: "orders"},
	}

	order := topoSortTables(tables, edges)
	assert.Len(t, order, 4)

	pos := map[string]int{}
	for i, t := range order {
		pos[t] = i
	}
	assert.Less(t, pos["users"], pos["orders"])
	assert.Less(t, pos["orders"], pos["line_items"])
	assert.Contains(t, pos, "audit")
}

func TestTopoSortTablesToleratesCycles(t *testing.T) {
	tables := []string{"a", "b", "c"}
	edges := []FKEdge{
		{From: "a", To: "b"},
		{From: "b", To: "c"},
		{From: "c", To: "a"}, // cycle
	}

	order := topoSortTables(tables, edges)
	// The back-edge is skipped; every table still appears exactly once.
	assert.Len(t, order, 3)
	seen := map[string]bool{}
	for _, tbl := range order {
		assert.False(t, seen[tbl])
		seen[tbl] = true
	}
}

func TestTopoSortSelfReference(t *testing.T) {
	order := topoSortTables([]string{"employees"}, []FKEdge{{From: "employees", To: "employees"}})
	assert.Equal(t, []string{"employees"}, order)
}

func TestMutationPrecheck(t *testing.T) {
	assert.Nil(t, mutationPrecheck("SELECT 1", false))
	assert.Nil(t, mutationPrecheck("UPDATE users SET x = 1", true))

	res := mutationPrecheck("UPDATE users SET x = 1", false)
	assert.NotNil(t, res)
	assert.Equal(t, StatusPendingConfirmation, res.Status)
	assert.Equal(t, "UPDATE users SET x = 1", res.Data["sql"])
}
