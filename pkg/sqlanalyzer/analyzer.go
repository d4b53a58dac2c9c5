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

// Package sqlanalyzer classifies SELECT statements as analytical and parses
// EXPLAIN output to flag expensive operations before execution. The analysis
// is advisory: when a plan cannot be parsed the analyzer reports no issues
// rather than blocking the query.
package sqlanalyzer

import (
	"regexp"
	"strconv"
	"strings"
)

// Issue severities.
const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
)

// Issue is one detected plan problem.
type Issue struct {
	Level       string `json:"level"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Detail      string `json:"detail,omitempty"`
}

// Report is the analyzer output for one statement.
type Report struct {
	ShouldConfirm      bool                   `json:"should_confirm"`
	Issues             []Issue                `json:"issues"`
	PerformanceSummary map[string]interface{} `json:"performance_summary"`
	ExplainError       string                 `json:"explain_error,omitempty"`
}

// Thresholds configure the detection rules.
type Thresholds struct {
	FullScanRows    int64   // full scan above this row estimate is critical
	LargeResultRows int64   // result estimate above this is a warning
	NestedLoopRows  int64   // nested-loop outer side above this is a warning
	TotalCost       float64 // plan cost above this is a warning
}

// DefaultThresholds returns the standard limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FullScanRows:    10000,
		LargeResultRows: 100000,
		NestedLoopRows:  1000,
		TotalCost:       10000,
	}
}

// Analyzer holds the thresholds.
type Analyzer struct {
	thresholds Thresholds
}

// New creates an analyzer with the given thresholds.
func New(t Thresholds) *Analyzer {
	if t.FullScanRows == 0 {
		t = DefaultThresholds()
	}
	return &Analyzer{thresholds: t}
}

// analyticalMarkers flag SELECT features that make a query analytical.
var analyticalMarkers = []string{
	" JOIN ", "GROUP BY", "ORDER BY", "DISTINCT",
	"UNION", "INTERSECT", "EXCEPT", "MINUS",
	"OVER (", "OVER(",
}

var aggregateRe = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max)\s*\(`)

// IsAnalytical reports whether a SELECT contains joins, grouping, sorting,
// set operators, CTEs, window functions, aggregates, subqueries, or is an
// unlimited full scan.
func IsAnalytical(stmt string) bool {
	upper := " " + strings.ToUpper(strings.Join(strings.Fields(stmt), " ")) + " "
	if !strings.Contains(upper, "SELECT") {
		return false
	}
	for _, marker := range analyticalMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	if strings.HasPrefix(strings.TrimSpace(upper), "WITH ") {
		return true
	}
	if aggregateRe.MatchString(stmt) {
		return true
	}
	// Subquery: a second SELECT inside the statement.
	if strings.Count(upper, "SELECT") > 1 {
		return true
	}
	// Unlimited full scan: SELECT without WHERE and without LIMIT/FETCH/TOP.
	if !strings.Contains(upper, " WHERE ") &&
		!strings.Contains(upper, " LIMIT ") &&
		!strings.Contains(upper, " FETCH ") &&
		!strings.Contains(upper, " TOP ") {
		return true
	}
	return false
}

// ExplainFailed builds the advisory report for a failed EXPLAIN. The
// statement is never blocked on analyzer failure.
func ExplainFailed(err error) *Report {
	return &Report{
		ShouldConfirm:      false,
		Issues:             nil,
		PerformanceSummary: map[string]interface{}{},
		ExplainError:       err.Error(),
	}
}

// AnalyzePlan inspects the engine's native EXPLAIN text and returns the
// detected issues. engine is the adapter kind.
func (a *Analyzer) AnalyzePlan(engine, plan string) *Report {
	var issues []Issue
	summary := map[string]interface{}{}

	switch engine {
	case "postgresql", "gaussdb":
		issues = a.analyzePostgresPlan(plan, summary)
	case "mysql":
		issues = a.analyzeMySQLPlan(plan, summary)
	case "oracle":
		issues = a.analyzeOraclePlan(plan, summary)
	case "sqlserver":
		issues = a.analyzeSQLServerPlan(plan, summary)
	default:
		issues = a.analyzePostgresPlan(plan, summary)
	}

	report := &Report{Issues: issues, PerformanceSummary: summary}
	for _, issue := range issues {
		if issue.Level == LevelCritical {
			report.ShouldConfirm = true
			break
		}
	}
	return report
}

var (
	pgNodeRe = regexp.MustCompile(`(?m)^\s*(?:->\s*)?([A-Za-z ]+?)\s+(?:on\s+\S+\s+)?\(cost=[\d.]+\.\.([\d.]+)\s+rows=(\d+)\s`)
)

func (a *Analyzer) analyzePostgresPlan(plan string, summary map[string]interface{}) []Issue {
	var issues []Issue
	var maxCost float64
	var topRows int64
	hasCriticalScan := false

	matches := pgNodeRe.FindAllStringSubmatch(plan, -1)
	for i, m := range matches {
		node := strings.TrimSpace(m[1])
		cost, _ := strconv.ParseFloat(m[2], 64)
		rows, _ := strconv.ParseInt(m[3], 10, 64)
		if cost > maxCost {
			maxCost = cost
		}
		if i == 0 {
			topRows = rows
		}

		if strings.HasPrefix(node, "Seq Scan") && rows > a.thresholds.FullScanRows {
			hasCriticalScan = true
			issues = append(issues, Issue{
				Level:       LevelCritical,
				Code:        "full_table_scan",
				Description: "sequential scan over a large table",
				Detail:      m[0],
			})
		}
		if strings.HasPrefix(node, "Nested Loop") && rows > a.thresholds.NestedLoopRows {
			issues = append(issues, Issue{
				Level:       LevelWarning,
				Code:        "large_nested_loop",
				Description: "nested loop join with a large outer side",
				Detail:      m[0],
			})
		}
	}

	if !hasCriticalScan && topRows > a.thresholds.LargeResultRows {
		issues = append(issues, Issue{
			Level:       LevelWarning,
			Code:        "large_result",
			Description: "estimated result set is very large",
		})
	}
	if maxCost > a.thresholds.TotalCost {
		issues = append(issues, Issue{
			Level:       LevelWarning,
			Code:        "high_cost",
			Description: "total plan cost exceeds the configured threshold",
		})
	}

	summary["estimated_rows"] = topRows
	summary["total_cost"] = maxCost
	return issues
}

var (
	mysqlRowsRe = regexp.MustCompile(`"rows_examined_per_scan":\s*(\d+)|rows:\s*(\d+)`)
	mysqlCostRe = regexp.MustCompile(`"query_cost":\s*"?([\d.]+)`)
)

func (a *Analyzer) analyzeMySQLPlan(plan string, summary map[string]interface{}) []Issue {
	var issues []Issue
	var maxRows int64

	for _, m := range mysqlRowsRe.FindAllStringSubmatch(plan, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		rows, _ := strconv.ParseInt(raw, 10, 64)
		if rows > maxRows {
			maxRows = rows
		}
	}

	fullScan := strings.Contains(plan, `"access_type": "ALL"`) || strings.Contains(plan, "type: ALL")
	if fullScan && maxRows > a.thresholds.FullScanRows {
		issues = append(issues, Issue{
			Level:       LevelCritical,
			Code:        "full_table_scan",
			Description: "full table scan over a large table",
		})
	} else if maxRows > a.thresholds.LargeResultRows {
		issues = append(issues, Issue{
			Level:       LevelWarning,
			Code:        "large_result",
			Description: "estimated result set is very large",
		})
	}

	nonTrivial := maxRows > a.thresholds.NestedLoopRows
	if nonTrivial && (strings.Contains(plan, "Using filesort") || strings.Contains(plan, `"using_filesort": true`)) {
		issues = append(issues, Issue{
			Level:       LevelWarning,
			Code:        "filesort",
			Description: "sort cannot use an index (Using filesort)",
		})
	}
	if nonTrivial && (strings.Contains(plan, "Using temporary") || strings.Contains(plan, `"using_temporary_table": true`)) {
		issues = append(issues, Issue{
			Level:       LevelWarning,
			Code:        "temporary_table",
			Description: "query materializes a temporary table",
		})
	}

	if m := mysqlCostRe.FindStringSubmatch(plan); m != nil {
		cost, _ := strconv.ParseFloat(m[1], 64)
		summary["total_cost"] = cost
		if cost > a.thresholds.TotalCost {
			issues = append(issues, Issue{
				Level:       LevelWarning,
				Code:        "high_cost",
				Description: "total plan cost exceeds the configured threshold",
			})
		}
	}

	summary["estimated_rows"] = maxRows
	return issues
}

var oracleRowsRe = regexp.MustCompile(`\|\s*(\d+)\s*\|\s*(\d+[KMG]?)\s*\|`)

func (a *Analyzer) analyzeOraclePlan(plan string, summary map[string]interface{}) []Issue {
	var issues []Issue

	if strings.Contains(plan, "TABLE ACCESS FULL") {
		rows := oracleMaxRows(plan)
		if rows > a.thresholds.FullScanRows {
			issues = append(issues, Issue{
				Level:       LevelCritical,
				Code:        "full_table_scan",
				Description: "TABLE ACCESS FULL over a large table",
			})
		}
		summary["estimated_rows"] = rows
	}

	for _, sortOp := range []string{"SORT ORDER BY", "SORT GROUP BY", "SORT UNIQUE"} {
		if strings.Contains(plan, sortOp) {
			issues = append(issues, Issue{
				Level:       LevelInfo,
				Code:        "sort_operation",
				Description: sortOp + " present in the plan",
			})
		}
	}
	return issues
}

// oracleMaxRows scans DBMS_XPLAN tabular output for the largest Rows value.
func oracleMaxRows(plan string) int64 {
	var maxRows int64
	for _, line := range strings.Split(plan, "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		for _, field := range strings.Split(line, "|") {
			field = strings.TrimSpace(field)
			rows, err := strconv.ParseInt(field, 10, 64)
			if err == nil && rows > maxRows && rows < 1<<40 {
				maxRows = rows
			}
		}
	}
	return maxRows
}

var mssqlRowsRe = regexp.MustCompile(`EstimateRows=["']?([\d.]+)`)

func (a *Analyzer) analyzeSQLServerPlan(plan string, summary map[string]interface{}) []Issue {
	var issues []Issue
	var maxRows int64

	for _, m := range mssqlRowsRe.FindAllStringSubmatch(plan, -1) {
		rows, _ := strconv.ParseFloat(m[1], 64)
		if int64(rows) > maxRows {
			maxRows = int64(rows)
		}
	}
	if maxRows == 0 {
		// SHOWPLAN_ALL tabular output carries EstimateRows as a column.
		for _, field := range strings.Fields(plan) {
			rows, err := strconv.ParseFloat(field, 64)
			if err == nil && int64(rows) > maxRows {
				maxRows = int64(rows)
			}
		}
	}

	fullScan := strings.Contains(plan, "Table Scan") || strings.Contains(plan, "Clustered Index Scan")
	if fullScan && maxRows > a.thresholds.FullScanRows {
		issues = append(issues, Issue{
			Level:       LevelCritical,
			Code:        "full_table_scan",
			Description: "table or clustered index scan over a large table",
		})
	} else if maxRows > a.thresholds.LargeResultRows {
		issues = append(issues, Issue{
			Level:       LevelWarning,
			Code:        "large_result",
			Description: "estimated result set is very large",
		})
	}
	if strings.Contains(plan, "Nested Loops") && maxRows > a.thresholds.NestedLoopRows {
		issues = append(issues, Issue{
			Level:       LevelWarning,
			Code:        "large_nested_loop",
			Description: "nested loops join with a large outer side",
		})
	}

	summary["estimated_rows"] = maxRows
	return issues
}
