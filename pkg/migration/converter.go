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

// Package migration plans, converts, and executes cross-dialect schema
// migrations. DDL conversion is rule based: ordered regex substitutions
// per (source, target) dialect pair, each recording a note when it fires.
package migration

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/weftdb/weft/pkg/store"
)

// rule is one substitution in a conversion pack.
type rule struct {
	pattern *regexp.Regexp
	replace string
	note    string
}

// skipRule marks constructs that cannot be converted at all.
type skipRule struct {
	pattern *regexp.Regexp
	reason  string
}

// Conversion is the outcome of converting one DDL statement. An empty
// DDL with a non-empty SkipReason means the object must be skipped.
type Conversion struct {
	DDL        string
	Notes      []string
	SkipReason string
}

var mysqlToPostgresSkips = []skipRule{
	{regexp.MustCompile(`(?i)\bFULLTEXT\s+(KEY|INDEX)\b`), "FULLTEXT indexes are not supported on the target"},
	{regexp.MustCompile(`(?i)\bSPATIAL\s+(KEY|INDEX)\b`), "SPATIAL indexes are not supported on the target"},
}

var mysqlToPostgresRules = []rule{
	{regexp.MustCompile(`(?i)\bBIGINT(\(\d+\))?\s+(UNSIGNED\s+)?AUTO_INCREMENT\b`), "BIGSERIAL", "BIGINT AUTO_INCREMENT converted to BIGSERIAL"},
	{regexp.MustCompile(`(?i)\b(INT|INTEGER)(\(\d+\))?\s+(UNSIGNED\s+)?AUTO_INCREMENT\b`), "SERIAL", "INT AUTO_INCREMENT converted to SERIAL"},
	{regexp.MustCompile(`(?i)\bSMALLINT(\(\d+\))?\s+(UNSIGNED\s+)?AUTO_INCREMENT\b`), "SMALLSERIAL", "SMALLINT AUTO_INCREMENT converted to SMALLSERIAL"},
	{regexp.MustCompile(`(?i)\bTINYINT\(1\)`), "BOOLEAN", "TINYINT(1) converted to BOOLEAN"},
	{regexp.MustCompile(`(?i)\bTINYINT(\(\d+\))?`), "SMALLINT", "TINYINT converted to SMALLINT"},
	{regexp.MustCompile(`(?i)\bDATETIME(\(\d+\))?`), "TIMESTAMP", "DATETIME converted to TIMESTAMP"},
	{regexp.MustCompile(`(?i)\b(LONGTEXT|MEDIUMTEXT|TINYTEXT)\b`), "TEXT", "TEXT variant widened to TEXT"},
	{regexp.MustCompile(`(?i)\b(LONGBLOB|MEDIUMBLOB|TINYBLOB|BLOB)\b`), "BYTEA", "BLOB converted to BYTEA"},
	{regexp.MustCompile(`(?i)\bJSON\b`), "JSONB", "JSON converted to JSONB"},
	{regexp.MustCompile(`(?i)\bDOUBLE(\(\d+,\s*\d+\))?\b`), "DOUBLE PRECISION", "DOUBLE converted to DOUBLE PRECISION"},
	{regexp.MustCompile(`(?i)\bENUM\s*\([^)]*\)`), "VARCHAR(50)", "ENUM flattened to VARCHAR(50), add a CHECK constraint manually"},
	{regexp.MustCompile(`(?i)\s+UNSIGNED\b`), "", "UNSIGNED removed"},
	{regexp.MustCompile(`(?i)\s+ZEROFILL\b`), "", "ZEROFILL removed"},
	{regexp.MustCompile(`(?i)\s*ENGINE\s*=\s*\w+`), "", "ENGINE clause removed"},
	{regexp.MustCompile(`(?i)\s*AUTO_INCREMENT\s*=\s*\d+`), "", "AUTO_INCREMENT start value removed"},
	{regexp.MustCompile(`(?i)\s*(DEFAULT\s+)?(CHARSET|CHARACTER\s+SET)\s*=?\s*\w+`), "", "CHARSET clause removed"},
	{regexp.MustCompile(`(?i)\s*COLLATE\s*=?\s*\w+`), "", "COLLATE clause removed"},
	{regexp.MustCompile(`(?i)\s*ROW_FORMAT\s*=\s*\w+`), "", "ROW_FORMAT clause removed"},
	{regexp.MustCompile(`(?i)\s+COMMENT\s+'[^']*'`), "", "inline COMMENT removed"},
	{regexp.MustCompile("`([^`]+)`"), `"$1"`, "backtick identifiers quoted"},
}

var oracleToPostgresRules = []rule{
	{regexp.MustCompile(`(?i)\bNUMBER\(10\)`), "INTEGER", "NUMBER(10) converted to INTEGER"},
	{regexp.MustCompile(`(?i)\bNUMBER\(19\)`), "BIGINT", "NUMBER(19) converted to BIGINT"},
	{regexp.MustCompile(`(?i)\bNUMBER\((\d+),\s*(\d+)\)`), "NUMERIC($1,$2)", "NUMBER(p,s) converted to NUMERIC(p,s)"},
	{regexp.MustCompile(`(?i)\bNUMBER\b`), "NUMERIC", "NUMBER converted to NUMERIC"},
	{regexp.MustCompile(`(?i)\bVARCHAR2\b`), "VARCHAR", "VARCHAR2 converted to VARCHAR"},
	{regexp.MustCompile(`(?i)\bNVARCHAR2\b`), "VARCHAR", "NVARCHAR2 converted to VARCHAR"},
	{regexp.MustCompile(`(?i)\b(CLOB|NCLOB)\b`), "TEXT", "CLOB converted to TEXT"},
	{regexp.MustCompile(`(?i)\b(BLOB|RAW\(\d+\))`), "BYTEA", "BLOB/RAW converted to BYTEA"},
	{regexp.MustCompile(`(?i)\bSYSTIMESTAMP\b`), "CURRENT_TIMESTAMP", "SYSTIMESTAMP converted to CURRENT_TIMESTAMP"},
	{regexp.MustCompile(`(?i)\bSYSDATE\b`), "CURRENT_TIMESTAMP", "SYSDATE converted to CURRENT_TIMESTAMP"},
}

// oracleToGaussRules extends the PostgreSQL pack with the DBE package
// renames GaussDB expects.
var oracleToGaussRules = []rule{
	{regexp.MustCompile(`(?i)\bDBMS_LOB\.`), "DBE_LOB.", "DBMS_LOB mapped to DBE_LOB"},
	{regexp.MustCompile(`(?i)\bDBMS_OUTPUT\.`), "DBE_OUTPUT.", "DBMS_OUTPUT mapped to DBE_OUTPUT"},
	{regexp.MustCompile(`(?i)\bDBMS_RANDOM\.VALUE\b`), "DBE_RANDOM.GET_TABLE_VALUE", "DBMS_RANDOM.VALUE mapped to DBE_RANDOM.GET_TABLE_VALUE"},
	{regexp.MustCompile(`(?i)\bDBMS_RANDOM\.`), "DBE_RANDOM.", "DBMS_RANDOM mapped to DBE_RANDOM"},
	{regexp.MustCompile(`(?i)\bUTL_RAW\.`), "DBE_RAW.", "UTL_RAW mapped to DBE_RAW"},
	{regexp.MustCompile(`(?i)\bDBMS_SQL\.`), "DBE_SQL.", "DBMS_SQL mapped to DBE_SQL"},
	{regexp.MustCompile(`!\s+=`), "!=", "'! =' normalized to '!='"},
}

var connectByRe = regexp.MustCompile(`(?i)\bCONNECT\s+BY\b`)

// packFor resolves the rule pack for a dialect pair. GaussDB accepts
// everything its PostgreSQL base does.
func packFor(sourceKind, targetKind string) (skips []skipRule, rules []rule, err error) {
	switch {
	case sourceKind == store.EngineMySQL &&
		(targetKind == store.EnginePostgreSQL || targetKind == store.EngineGaussDB):
		return mysqlToPostgresSkips, mysqlToPostgresRules, nil
	case sourceKind == store.EngineOracle && targetKind == store.EnginePostgreSQL:
		return nil, oracleToPostgresRules, nil
	case sourceKind == store.EngineOracle && targetKind == store.EngineGaussDB:
		combined := make([]rule, 0, len(oracleToPostgresRules)+len(oracleToGaussRules))
		combined = append(combined, oracleToPostgresRules...)
		combined = append(combined, oracleToGaussRules...)
		return nil, combined, nil
	case sourceKind == targetKind:
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("no conversion pack for %s to %s", sourceKind, targetKind)
}

// ConvertDDL rewrites one statement for the target dialect. objectType
// only influences skip decisions (for example FULLTEXT indexes).
func ConvertDDL(sourceDDL, sourceKind, targetKind, objectType string) (*Conversion, error) {
	skips, rules, err := packFor(sourceKind, targetKind)
	if err != nil {
		return nil, err
	}

	conv := &Conversion{DDL: sourceDDL}
	for _, s := range skips {
		if !s.pattern.MatchString(conv.DDL) {
			continue
		}
		if objectType == store.ObjectIndex {
			// A standalone index of an unsupported kind cannot migrate.
			return &Conversion{SkipReason: s.reason}, nil
		}
		// Inside a table body the offending clause is stripped instead.
		conv.DDL = stripIndexLines(conv.DDL, s.pattern)
		conv.Notes = append(conv.Notes, s.reason+", clause removed")
	}
	for _, r := range rules {
		if r.pattern.MatchString(conv.DDL) {
			conv.DDL = r.pattern.ReplaceAllString(conv.DDL, r.replace)
			conv.Notes = append(conv.Notes, r.note)
		}
	}

	if sourceKind == store.EngineOracle && connectByRe.MatchString(conv.DDL) {
		conv.Notes = append(conv.Notes, "CONNECT BY requires a manual rewrite as WITH RECURSIVE")
	}
	return conv, nil
}

// stripIndexLines drops table-body lines matching an unsupported index
// clause, keeping the surrounding definition valid.
func stripIndexLines(ddl string, pattern *regexp.Regexp) string {
	lines := strings.Split(ddl, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if pattern.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.Join(kept, "\n")
	// A removed last body line may leave a dangling comma.
	out = regexp.MustCompile(`,\s*\)`).ReplaceAllString(out, "\n)")
	return out
}
