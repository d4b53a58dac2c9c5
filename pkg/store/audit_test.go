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

package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSensitive(t *testing.T) {
	params := map[string]interface{}{
		"password":       "hunter2",
		"Api_Key":        "sk-12345",
		"refresh_token":  "tok",
		"db_credential":  "creds",
		"client_secret":  "shh",
		"host":           "db1",
		"nested":         map[string]interface{}{"password": "inner", "port": 5432},
		"list":           []interface{}{map[string]interface{}{"api_key": "k"}},
		"masked_already": "***",
	}

	masked := MaskSensitive(params)

	assert.Equal(t, "***", masked["password"])
	assert.Equal(t, "***", masked["Api_Key"])
	assert.Equal(t, "***", masked["refresh_token"])
	assert.Equal(t, "***", masked["db_credential"])
	assert.Equal(t, "***", masked["client_secret"])
	assert.Equal(t, "db1", masked["host"])

	nested := masked["nested"].(map[string]interface{})
	assert.Equal(t, "***", nested["password"])
	assert.Equal(t, 5432, nested["port"])

	list := masked["list"].([]interface{})
	assert.Equal(t, "***", list[0].(map[string]interface{})["api_key"])

	// Original untouched.
	assert.Equal(t, "hunter2", params["password"])
}

func TestAppendAuditMasksParameters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.AppendAudit(ctx, &AuditRecord{
		Category:     AuditConfigChange,
		Action:       "add_connection",
		ResultStatus: AuditSuccess,
	}, map[string]interface{}{
		"name":     "prod",
		"password": "plaintext-secret",
	})
	require.NoError(t, err)

	recs, err := s.ListAudit(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotContains(t, recs[0].Parameters, "plaintext-secret")
	assert.Contains(t, recs[0].Parameters, `"password":"***"`)
	assert.Contains(t, recs[0].Parameters, `"name":"prod"`)
}

func TestAuditSQLRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.AppendAudit(ctx, &AuditRecord{
		Category:        AuditSQLExecute,
		Action:          "execute_sql",
		SQLText:         "UPDATE users SET active = false WHERE id = 1",
		ResultStatus:    AuditSuccess,
		AffectedRows:    1,
		ExecutionTimeMs: 12,
		UserConfirmed:   true,
	}, nil)
	require.NoError(t, err)

	recs, err := s.ListAudit(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].UserConfirmed)
	assert.EqualValues(t, 1, recs[0].AffectedRows)
	assert.True(t, strings.HasPrefix(recs[0].SQLText, "UPDATE"))
}

func TestCleanupAuditByAge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendAudit(ctx, &AuditRecord{
		Category: AuditToolCall, Action: "list_tables", ResultStatus: AuditSuccess,
	}, nil))

	// Backdate the record past the retention window.
	old := time.Now().AddDate(0, 0, -40).UnixNano()
	_, err := s.db.Exec("UPDATE audit_logs SET created_at = ?", old)
	require.NoError(t, err)

	require.NoError(t, s.AppendAudit(ctx, &AuditRecord{
		Category: AuditToolCall, Action: "describe_table", ResultStatus: AuditSuccess,
	}, nil))

	removed, err := s.CleanupAudit(ctx, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	recs, err := s.ListAudit(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "describe_table", recs[0].Action)
}
