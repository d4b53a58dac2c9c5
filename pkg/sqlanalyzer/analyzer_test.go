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

package sqlanalyzer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAnalytical(t *testing.T) {
	analytical := []string{
		"SELECT * FROM orders o JOIN users u ON o.user_id = u.id",
		"SELECT region, count(*) FROM sales GROUP BY region",
		"SELECT DISTINCT name FROM users",
		"SELECT * FROM a UNION SELECT * FROM b",
		"WITH t AS (SELECT 1) SELECT * FROM t",
		"SELECT rank() OVER (ORDER BY score) FROM players",
		"SELECT sum(amount) FROM payments WHERE paid",
		"SELECT * FROM users WHERE id IN (SELECT user_id FROM admins)",
		"SELECT * FROM events", // unlimited full scan
	}
	for _, stmt := range analytical {
		assert.True(t, IsAnalytical(stmt), stmt)
	}

	simple := []string{
		"SELECT * FROM users WHERE id = 1",
		"SELECT name FROM users LIMIT 10",
		"UPDATE users SET active = false", // not a SELECT
	}
	for _, stmt := range simple {
		assert.False(t, IsAnalytical(stmt), stmt)
	}
}

func TestAnalyzePostgresPlanFullScan(t *testing.T) {
	a := New(DefaultThresholds())
	plan := "Seq Scan on orders  (cost=0.00..4582.00 rows=250000 width=8)\n"

	report := a.AnalyzePlan("postgresql", plan)
	assert.True(t, report.ShouldConfirm)
	require.NotEmpty(t, report.Issues)
	assert.Equal(t, LevelCritical, report.Issues[0].Level)
	assert.Equal(t, "full_table_scan", report.Issues[0].Code)
}

func TestAnalyzePostgresPlanSmallScanClean(t *testing.T) {
	a := New(DefaultThresholds())
	plan := "Seq Scan on tiny  (cost=0.00..1.05 rows=5 width=8)\n"

	report := a.AnalyzePlan("postgresql", plan)
	assert.False(t, report.ShouldConfirm)
	assert.Empty(t, report.Issues)
}

func TestAnalyzePostgresHighCostWarning(t *testing.T) {
	a := New(DefaultThresholds())
	plan := "Index Scan using idx on orders  (cost=0.43..55000.00 rows=500 width=8)\n"

	report := a.AnalyzePlan("postgresql", plan)
	assert.False(t, report.ShouldConfirm)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "high_cost", report.Issues[0].Code)
	assert.Equal(t, LevelWarning, report.Issues[0].Level)
}

func TestAnalyzeMySQLFilesort(t *testing.T) {
	a := New(DefaultThresholds())
	plan := "id: 1 select_type: SIMPLE table: orders type: ALL rows: 50000 Extra: Using filesort; Using temporary"

	report := a.AnalyzePlan("mysql", plan)
	assert.True(t, report.ShouldConfirm)

	codes := map[string]bool{}
	for _, issue := range report.Issues {
		codes[issue.Code] = true
	}
	assert.True(t, codes["full_table_scan"])
	assert.True(t, codes["filesort"])
	assert.True(t, codes["temporary_table"])
}

func TestAnalyzeOracleSortInfo(t *testing.T) {
	a := New(DefaultThresholds())
	plan := `
|   1 |  SORT ORDER BY     |      |   500 |  12K |
|   2 |   TABLE ACCESS FULL| EMP  |   500 |  12K |
`
	report := a.AnalyzePlan("oracle", plan)
	assert.False(t, report.ShouldConfirm) // 500 rows is under the full-scan limit

	require.NotEmpty(t, report.Issues)
	assert.Equal(t, LevelInfo, report.Issues[0].Level)
	assert.Equal(t, "sort_operation", report.Issues[0].Code)
}

func TestAnalyzeOracleLargeFullScan(t *testing.T) {
	a := New(DefaultThresholds())
	plan := "|   1 |  TABLE ACCESS FULL| ORDERS |  2000000 | 45M |"

	report := a.AnalyzePlan("oracle", plan)
	assert.True(t, report.ShouldConfirm)
}

func TestAnalyzeSQLServerScan(t *testing.T) {
	a := New(DefaultThresholds())
	plan := `Clustered Index Scan(OBJECT:([db].[dbo].[orders])) EstimateRows="150000"`

	report := a.AnalyzePlan("sqlserver", plan)
	assert.True(t, report.ShouldConfirm)
}

func TestExplainFailedIsAdvisory(t *testing.T) {
	report := ExplainFailed(errors.New("permission denied for relation orders"))
	assert.False(t, report.ShouldConfirm)
	assert.Empty(t, report.Issues)
	assert.Contains(t, report.ExplainError, "permission denied")
}
