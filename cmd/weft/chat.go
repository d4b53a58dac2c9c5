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
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/pkg/adapter"
	"github.com/weftdb/weft/pkg/agent"
	"github.com/weftdb/weft/pkg/config"
	"github.com/weftdb/weft/pkg/migration"
	"github.com/weftdb/weft/pkg/skill"
	"github.com/weftdb/weft/pkg/store"
	"github.com/weftdb/weft/pkg/tool"
)

var (
	chatSession    string
	chatConnection string
	chatProvider   string
)

// chatRuntime carries the wired pieces a turn needs: the agent, the
// store and the primary connection, plus any adapters opened later for
// an in-chat migration setup.
type chatRuntime struct {
	st     *store.Store
	agent  *agent.Agent
	conn   *store.Connection
	db     adapter.Adapter
	extras []adapter.Adapter
}

func (rt *chatRuntime) closeExtras() {
	for _, db := range rt.extras {
		db.Close()
	}
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the database assistant",
	Long: `Start an interactive conversation, or send a single message and exit.

Examples:
  weft chat
  weft chat "how many orders were placed today?"
  weft chat --session work --connection staging
`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session name to resume or create")
	chatCmd.Flags().StringVar(&chatConnection, "connection", "", "connection profile (default: active)")
	chatCmd.Flags().StringVar(&chatProvider, "provider", "", "provider profile (default: default)")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if stop, err := st.StartRetentionPurge(cfg.Audit.PurgeSchedule, cfg.Audit.RetentionDays); err == nil {
		defer stop()
	}

	conn, db, err := resolveConnection(ctx, st, chatConnection)
	if err != nil {
		return err
	}
	defer db.Close()

	prof, provider, err := resolveProvider(ctx, st, chatProvider)
	if err != nil {
		return err
	}

	session, err := resolveSession(ctx, st, chatSession, conn.ID, prof.ID)
	if err != nil {
		return err
	}

	skills := skill.NewRegistry(config.PersonalSkillsDir(), config.ProjectSkillsDir())
	if err := skills.Watch(); err == nil {
		defer skills.Stop()
	}

	registry := tool.NewRegistry()
	servers := startToolServers(ctx, st, registry)
	defer servers.CloseAll()

	secrets, err := secretStore()
	if err != nil {
		return err
	}
	password := secrets.Decrypt(conn.Password)

	a, err := agent.New(ctx, agent.Config{
		Provider:      provider,
		Adapter:       db,
		AdapterCfg:    adapterConfig(conn, password),
		Store:         st,
		SessionID:     session.ID,
		Language:      cfg.Language,
		Skills:        skills,
		Registry:      registry,
		MaxIterations: cfg.Agent.MaxIterations,
	})
	if err != nil {
		return err
	}

	rt := &chatRuntime{st: st, agent: a, conn: conn, db: db}
	defer rt.closeExtras()

	// Ctrl-C interrupts the in-flight turn instead of killing the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			a.RequestInterrupt()
			fmt.Println("\n(interrupting, the next message resumes the turn)")
		}
	}()

	if len(args) > 0 {
		return runTurn(ctx, rt, strings.Join(args, " "))
	}

	engine := conn.Kind
	if info := db.GetDBInfo(ctx); info.Status == adapter.StatusSuccess {
		if v, ok := info.Data["version_display"].(string); ok && v != "" {
			engine = v
		}
	}
	fmt.Printf("weft chat - session %q on %s (%s). Type /quit to exit.\n", session.Name, conn.Database, engine)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if err := runTurn(ctx, rt, line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// runTurn sends one message and walks through any confirmation pauses.
func runTurn(ctx context.Context, rt *chatRuntime, message string) error {
	a := rt.agent
	result, err := a.Chat(ctx, message)
	if err != nil {
		return err
	}

	if result.Interrupted {
		fmt.Println("(turn interrupted)")
		return nil
	}
	if result.Content != "" {
		fmt.Println(result.Content)
	}

	for result.Pending != nil {
		followUp, done, err := handlePending(ctx, rt, result.Pending)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		result, err = a.Chat(ctx, followUp)
		if err != nil {
			return err
		}
		if result.Content != "" {
			fmt.Println(result.Content)
		}
	}
	return nil
}

// handlePending resolves one pause: confirmation prompts execute or
// decline the queued operation, input requests read the answer from the
// terminal. The returned string feeds the next turn.
func handlePending(ctx context.Context, rt *chatRuntime, pending *tool.Result) (string, bool, error) {
	a := rt.agent
	switch pending.Status {
	case tool.StatusPendingConfirmation, tool.StatusPendingPerformance:
		fmt.Println(pending.Message)
		if sql, ok := pending.Data["sql"].(string); ok {
			fmt.Printf("  %s\n", sql)
		}
		if !promptYesNo("Execute? [y/N] ") {
			return "I declined the operation. Do not run it.", false, nil
		}
		res, err := a.ConfirmOperation(ctx, dataIndex(pending.Data))
		if err != nil {
			return "", false, err
		}
		feedback, _ := json.Marshal(res)
		return "The operation was confirmed and executed. Result: " + string(feedback), false, nil

	case tool.StatusFormInputRequested:
		if prompt, ok := pending.Data["prompt"].(string); ok {
			fmt.Println(prompt)
		}
		fmt.Print("> ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", true, err
		}
		return strings.TrimSpace(line), false, nil

	case tool.StatusMigrationSetupRequested:
		feedback, err := rt.setupMigration(ctx, pending)
		if err != nil {
			return "", false, err
		}
		return feedback, false, nil
	}
	return "", true, nil
}

// setupMigration collects connection details at the terminal, creates
// the task and attaches a migration handler so the turn can continue
// with the migration tools available. The returned string tells the
// model what was set up.
func (rt *chatRuntime) setupMigration(ctx context.Context, pending *tool.Result) (string, error) {
	if reason, ok := pending.Data["reason"].(string); ok && reason != "" {
		fmt.Println(reason)
	}
	fmt.Println("Setting up a migration. Source defaults to the current connection.")

	sourceName := promptLine(fmt.Sprintf("Source connection [%s]: ", rt.conn.Name))
	targetName := promptLine("Target connection: ")
	if targetName == "" {
		return "I cancelled the migration setup.", nil
	}
	sourceSchema := promptLine("Source schema: ")
	targetSchema := promptLine("Target schema: ")
	autoExecute := promptYesNo("Execute converted DDL without per-statement confirmation? [y/N] ")

	sourceConn, sourceDB := rt.conn, rt.db
	if sourceName != "" && sourceName != rt.conn.Name {
		conn, db, err := resolveConnection(ctx, rt.st, sourceName)
		if err != nil {
			return fmt.Sprintf("Migration setup failed, the source connection could not be opened: %v", err), nil
		}
		rt.extras = append(rt.extras, db)
		sourceConn, sourceDB = conn, db
	}
	targetConn, targetDB, err := resolveConnection(ctx, rt.st, targetName)
	if err != nil {
		return fmt.Sprintf("Migration setup failed, the target connection could not be opened: %v", err), nil
	}
	rt.extras = append(rt.extras, targetDB)

	options, _ := json.Marshal(migration.Options{AutoExecute: autoExecute})
	task := &store.MigrationTask{
		Name:               fmt.Sprintf("%s-to-%s", sourceConn.Name, targetConn.Name),
		SourceConnectionID: sourceConn.ID,
		TargetConnectionID: targetConn.ID,
		SourceKind:         sourceConn.Kind,
		TargetKind:         targetConn.Kind,
		Status:             store.TaskPending,
		SourceSchema:       sourceSchema,
		TargetSchema:       targetSchema,
		Options:            string(options),
	}
	if err := rt.st.CreateMigrationTask(ctx, task); err != nil {
		return "", err
	}

	rt.agent.SetMigrationHandler(migration.NewHandler(rt.st, sourceDB, targetDB))
	fmt.Printf("Created migration task %s (%s -> %s)\n", task.ID, sourceConn.Kind, targetConn.Kind)

	return fmt.Sprintf(
		"Migration setup is complete. Task id %s migrates %s schema %q to %s schema %q (auto_execute=%v). Proceed with the migration tools using this task id.",
		task.ID, sourceConn.Kind, sourceSchema, targetConn.Kind, targetSchema, autoExecute), nil
}

func promptLine(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

func promptYesNo(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func dataIndex(data map[string]interface{}) int {
	if v, ok := data["operation_index"].(float64); ok {
		return int(v)
	}
	if v, ok := data["operation_index"].(int); ok {
		return v
	}
	return 0
}

// resolveSession finds or creates the named session; with no name the
// current session is resumed, creating a default one on first run.
func resolveSession(ctx context.Context, st *store.Store, name, connectionID, providerID string) (*store.Session, error) {
	if name != "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range sessions {
			if s.Name == name {
				return s, st.SetCurrentSession(ctx, s.ID)
			}
		}
		return st.CreateSession(ctx, name, connectionID, providerID)
	}

	session, err := st.CurrentSession(ctx)
	if err == store.ErrNotFound {
		return st.CreateSession(ctx, "default", connectionID, providerID)
	}
	return session, err
}
