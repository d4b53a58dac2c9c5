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
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "weft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "exploration", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	require.NoError(t, s.SetCurrentSession(ctx, sess.ID))

	current, err := s.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, current.ID)
	assert.True(t, current.IsCurrent)

	// A second session taking the current flag clears the first.
	other, err := s.CreateSession(ctx, "tuning", "", "")
	require.NoError(t, err)
	require.NoError(t, s.SetCurrentSession(ctx, other.ID))

	current, err = s.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, other.ID, current.ID)

	first, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, first.IsCurrent)

	require.NoError(t, s.RenameSession(ctx, sess.ID, "renamed"))
	first, err = s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", first.Name)

	require.NoError(t, s.DeleteSession(ctx, sess.ID))
	_, err = s.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "chat", "", "")
	require.NoError(t, err)

	msgs := []*ChatMessage{
		{SessionID: sess.ID, Role: "user", Content: "list the tables"},
		{SessionID: sess.ID, Role: "assistant", ToolCalls: []StoredToolCall{{
			ID:               "call-1",
			Name:             "list_tables",
			Arguments:        `{"schema":"public"}`,
			ThoughtSignature: []byte{0x01, 0x02},
		}}},
		{SessionID: sess.ID, Role: "tool", Content: `["users"]`, ToolCallID: "call-1"},
	}
	for _, m := range msgs {
		require.NoError(t, s.AddMessage(ctx, m))
	}

	got, err := s.GetSessionMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "assistant", got[1].Role)
	require.Len(t, got[1].ToolCalls, 1)
	assert.Equal(t, "call-1", got[1].ToolCalls[0].ID)
	assert.Equal(t, `{"schema":"public"}`, got[1].ToolCalls[0].Arguments)
	assert.Equal(t, []byte{0x01, 0x02}, got[1].ToolCalls[0].ThoughtSignature)
	assert.Equal(t, "call-1", got[2].ToolCallID)

	// Adding a message bumps the session timestamp.
	updated, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(sess.CreatedAt) || updated.UpdatedAt.Equal(sess.CreatedAt))
}

func TestDeleteOldestMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "chat", "", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AddMessage(ctx, &ChatMessage{
			SessionID: sess.ID,
			Role:      "user",
			Content:   strings.Repeat("m", i+1),
		}))
	}

	require.NoError(t, s.DeleteOldestMessages(ctx, sess.ID, 3))

	got, err := s.GetSessionMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "mmmm", got[0].Content)
	assert.Equal(t, "mmmmm", got[1].Content)
}

func TestSessionDeleteCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "chat", "", "")
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(ctx, &ChatMessage{SessionID: sess.ID, Role: "user", Content: "hi"}))
	require.NoError(t, s.SaveContextSummary(ctx, &ContextSummary{SessionID: sess.ID, Summary: "greeting"}))

	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	msgs, err := s.GetSessionMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = s.LatestContextSummary(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContextSummaries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "chat", "", "")
	require.NoError(t, err)

	require.NoError(t, s.SaveContextSummary(ctx, &ContextSummary{
		SessionID: sess.ID, Summary: "first", MessagesReplaced: 10,
		TokensBefore: 4000, TokensAfter: 200,
	}))
	require.NoError(t, s.SaveContextSummary(ctx, &ContextSummary{
		SessionID: sess.ID, Summary: "second", MessagesReplaced: 8,
	}))

	latest, err := s.LatestContextSummary(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", latest.Summary)
}

func TestConnectionActiveFlag(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConnection(ctx, &Connection{
		Name: "prod", Kind: EnginePostgreSQL, Host: "db1", Port: 5432,
		Database: "app", Username: "svc", Password: "wft1:abc",
	}))
	require.NoError(t, s.SaveConnection(ctx, &Connection{
		Name: "staging", Kind: EngineMySQL, Host: "db2", Port: 3306,
		Database: "app", Username: "svc", Password: "wft1:def",
	}))

	require.NoError(t, s.SetActiveConnection(ctx, "prod"))
	require.NoError(t, s.SetActiveConnection(ctx, "staging"))

	active, err := s.ActiveConnection(ctx)
	require.NoError(t, err)
	assert.Equal(t, "staging", active.Name)

	conns, err := s.ListConnections(ctx)
	require.NoError(t, err)
	activeCount := 0
	for _, c := range conns {
		if c.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestProviderDefaultFlag(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProvider(ctx, &Provider{Name: "main", Kind: "claude", APIKey: "wft1:xyz"}))
	require.NoError(t, s.SaveProvider(ctx, &Provider{Name: "alt", Kind: "deepseek", APIKey: "wft1:uvw"}))

	require.NoError(t, s.SetDefaultProvider(ctx, "main"))
	require.NoError(t, s.SetDefaultProvider(ctx, "alt"))

	def, err := s.DefaultProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alt", def.Name)
}

func TestMCPServerRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMCPServer(ctx, &MCPServer{
		Name:    "fs",
		Command: "npx",
		Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"},
		Env:     map[string]string{"NODE_ENV": "production"},
		Enabled: true,
	}))
	require.NoError(t, s.SaveMCPServer(ctx, &MCPServer{
		Name: "disabled", Command: "true", Enabled: false,
	}))

	all, err := s.ListMCPServers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := s.ListMCPServers(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "fs", enabled[0].Name)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"}, enabled[0].Args)
	assert.Equal(t, "production", enabled[0].Env["NODE_ENV"])
}

func TestMigrationTaskCounters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task := &MigrationTask{Name: "mysql-to-pg", SourceKind: EngineMySQL, TargetKind: EnginePostgreSQL}
	require.NoError(t, s.CreateMigrationTask(ctx, task))
	assert.Equal(t, TaskPending, task.Status)

	items := []*MigrationItem{
		{TaskID: task.ID, ObjectType: ObjectTable, ObjectName: "users", ExecutionOrder: 1, SourceDDL: "CREATE TABLE users (id INT)"},
		{TaskID: task.ID, ObjectType: ObjectTable, ObjectName: "orders", ExecutionOrder: 2, DependsOn: []string{"users"}, SourceDDL: "CREATE TABLE orders (id INT)"},
	}
	require.NoError(t, s.AddMigrationItems(ctx, items))

	got, err := s.GetMigrationItems(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "users", got[0].ObjectName)
	assert.Equal(t, []string{"users"}, got[1].DependsOn)
	assert.Empty(t, got[0].TargetDDL)

	got[0].Status = ItemCompleted
	got[0].TargetDDL = "CREATE TABLE users (id INTEGER)"
	require.NoError(t, s.UpdateMigrationItem(ctx, got[0]))

	require.NoError(t, s.UpdateMigrationTaskCounters(ctx, task.ID, 2, 1, 0, 0))
	require.NoError(t, s.UpdateMigrationTaskStatus(ctx, task.ID, TaskExecuting))

	reloaded, err := s.GetMigrationTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskExecuting, reloaded.Status)
	assert.Equal(t, 1, reloaded.CompletedCount)

	require.NoError(t, s.DeleteMigrationTask(ctx, task.ID))
	orphans, err := s.GetMigrationItems(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestPreferences(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lang, err := s.GetPreference(ctx, "language", "en")
	require.NoError(t, err)
	assert.Equal(t, "en", lang)

	require.NoError(t, s.SetPreference(ctx, "language", "zh"))
	require.NoError(t, s.SetPreference(ctx, "language", "zh"))

	lang, err = s.GetPreference(ctx, "language", "en")
	require.NoError(t, err)
	assert.Equal(t, "zh", lang)
}
