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
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
)

// sensitiveKeys are substrings of lowercased parameter keys whose values are
// replaced before an audit record is persisted.
var sensitiveKeys = []string{"password", "api_key", "secret", "token", "credential"}

const maskedValue = "***"

// MaskSensitive returns a copy of params with every value masked whose key
// matches the sensitive-key list. Nested objects and arrays are walked.
func MaskSensitive(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if isSensitiveKey(k) {
			out[k] = maskedValue
			continue
		}
		out[k] = maskValue(v)
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func maskValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return MaskSensitive(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = maskValue(item)
		}
		return out
	default:
		return v
	}
}

// AppendAudit persists one audit record. Parameters given as a map are
// masked and serialized here so no caller can bypass the masking.
func (s *Store) AppendAudit(ctx context.Context, rec *AuditRecord, params map[string]interface{}) error {
	if rec.ID == "" {
		rec.ID = newID()
	}
	now := nowNanos()
	rec.CreatedAt = fromNanos(now)

	if params != nil {
		data, err := json.Marshal(MaskSensitive(params))
		if err != nil {
			return fmt.Errorf("failed to marshal audit parameters: %w", err)
		}
		rec.Parameters = string(data)
	}

	confirmed := 0
	if rec.UserConfirmed {
		confirmed = 1
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_logs (
				id, session_id, connection_id, category, action, target_type, target_name,
				sql_text, parameters, result_status, result_summary, affected_rows,
				execution_time_ms, user_confirmed, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.SessionID, rec.ConnectionID, rec.Category, rec.Action,
			rec.TargetType, rec.TargetName, rec.SQLText, rec.Parameters,
			rec.ResultStatus, rec.ResultSummary, rec.AffectedRows,
			rec.ExecutionTimeMs, confirmed, now)
		return err
	})
}

// ListAudit returns audit records for a session (all sessions when empty),
// newest first, capped at limit.
func (s *Store) ListAudit(ctx context.Context, sessionID string, limit int) ([]*AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, session_id, connection_id, category, action, target_type, target_name,
		       sql_text, parameters, result_status, result_summary, affected_rows,
		       execution_time_ms, user_confirmed, created_at
		FROM audit_logs`
	args := []interface{}{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var out []*AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var confirmed int
		var created int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ConnectionID, &rec.Category,
			&rec.Action, &rec.TargetType, &rec.TargetName, &rec.SQLText, &rec.Parameters,
			&rec.ResultStatus, &rec.ResultSummary, &rec.AffectedRows,
			&rec.ExecutionTimeMs, &confirmed, &created); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.UserConfirmed = confirmed != 0
		rec.CreatedAt = fromNanos(created)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// CleanupAudit purges audit records older than the given number of days and
// returns the count removed. Purge is by age only.
func (s *Store) CleanupAudit(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days).UnixNano()

	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM audit_logs WHERE created_at < ?", cutoff)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

// StartRetentionPurge schedules CleanupAudit on the given cron expression
// (standard 5-field syntax). The returned stop function halts the scheduler.
func (s *Store) StartRetentionPurge(schedule string, days int) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		removed, err := s.CleanupAudit(context.Background(), days)
		if err != nil {
			log.Error("audit retention purge failed", zap.Error(err))
			return
		}
		if removed > 0 {
			log.Info("purged expired audit records",
				zap.Int64("removed", removed),
				zap.Int("retention_days", days))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	c.Start()
	return func() { c.Stop() }, nil
}
