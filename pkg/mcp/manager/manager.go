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

// Package manager supervises external tool-server subprocesses and
// projects their tools into the shared registry under prefixed names.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
	"github.com/weftdb/weft/pkg/mcp/client"
	"github.com/weftdb/weft/pkg/mcp/protocol"
	"github.com/weftdb/weft/pkg/mcp/transport"
	"github.com/weftdb/weft/pkg/tool"
)

// NameSeparator joins server and tool names, for example "jira__create_issue".
const NameSeparator = "__"

// ServerConfig describes one external tool server to launch.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string

	ConnectTimeout time.Duration
	CallTimeout    time.Duration
}

// Manager owns the lifecycle of external tool servers. When a server
// exits, its tools are withdrawn from the registry so the LLM stops
// seeing them on the next turn.
type Manager struct {
	registry *tool.Registry

	mu      sync.Mutex
	servers map[string]*client.Client
}

// New creates a manager that registers tools into registry.
func New(registry *tool.Registry) *Manager {
	return &Manager{
		registry: registry,
		servers:  make(map[string]*client.Client),
	}
}

// AddServer launches the subprocess, performs the handshake, and
// registers every advertised tool under "<server>__<tool>".
func (m *Manager) AddServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if strings.Contains(cfg.Name, NameSeparator) {
		return fmt.Errorf("server name %q must not contain %q", cfg.Name, NameSeparator)
	}

	m.mu.Lock()
	if _, exists := m.servers[cfg.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("server %q is already running", cfg.Name)
	}
	m.mu.Unlock()

	t, err := transport.NewStdio(transport.StdioConfig{
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("start server %q: %w", cfg.Name, err)
	}

	c := client.New(client.Config{
		Name:           cfg.Name,
		ConnectTimeout: cfg.ConnectTimeout,
		CallTimeout:    cfg.CallTimeout,
	}, t)

	if err := c.Initialize(ctx); err != nil {
		_ = c.Close()
		return err
	}

	tools, err := c.ListTools(ctx)
	if err != nil {
		_ = c.Close()
		return err
	}

	m.mu.Lock()
	m.servers[cfg.Name] = c
	m.mu.Unlock()

	for _, remote := range tools {
		m.registry.Register(m.makeDefinition(cfg.Name, remote))
	}

	go m.watchExit(cfg.Name, c)

	log.Info("external tool server connected",
		zap.String("server", cfg.Name),
		zap.Int("tools", len(tools)))
	return nil
}

// makeDefinition wraps one remote tool as a registry definition whose
// handler forwards to the server.
func (m *Manager) makeDefinition(server string, remote protocol.Tool) *tool.Definition {
	prefixed := server + NameSeparator + remote.Name
	remoteName := remote.Name

	return &tool.Definition{
		Name:        prefixed,
		Description: remote.Description,
		Parameters:  decodeSchema(remote.InputSchema),
		Source:      server,
		Handler: func(ctx context.Context, args map[string]interface{}) *tool.Result {
			return m.callServer(ctx, server, remoteName, args)
		},
	}
}

// decodeSchema converts the server's raw JSON schema. A schema that
// fails to decode degrades to a free-form object.
func decodeSchema(raw json.RawMessage) *tool.JSONSchema {
	if len(raw) == 0 {
		return tool.Object("", nil, nil)
	}
	var schema tool.JSONSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return tool.Object("", nil, nil)
	}
	return &schema
}

// callServer invokes a remote tool and folds the outcome into a tool
// result. Timeouts are reported as retryable.
func (m *Manager) callServer(ctx context.Context, server, name string, args map[string]interface{}) *tool.Result {
	m.mu.Lock()
	c, ok := m.servers[server]
	m.mu.Unlock()
	if !ok {
		return tool.Errorf(fmt.Sprintf("tool server %q is not running", server))
	}

	start := time.Now()
	out, err := c.CallTool(ctx, name, args)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		res := tool.Errorf(err.Error())
		res.ExecutionTimeMs = elapsed
		res.Retryable = errors.Is(err, client.ErrTimeout)
		return res
	}

	text := out.Text()
	if out.IsError {
		res := tool.Errorf(text)
		res.ExecutionTimeMs = elapsed
		return res
	}

	res := tool.Success(map[string]interface{}{"content": text})
	res.ExecutionTimeMs = elapsed
	return res
}

// watchExit withdraws the server's tools when its process dies outside
// of an explicit RemoveServer.
func (m *Manager) watchExit(name string, c *client.Client) {
	<-c.Done()

	m.mu.Lock()
	current, running := m.servers[name]
	if running && current == c {
		delete(m.servers, name)
	} else {
		running = false
	}
	m.mu.Unlock()

	if !running {
		return
	}

	removed := m.registry.UnregisterSource(name)
	log.Warn("external tool server exited, tools withdrawn",
		zap.String("server", name),
		zap.Strings("tools", removed))
	_ = c.Close()
}

// RemoveServer stops a server and withdraws its tools.
func (m *Manager) RemoveServer(name string) error {
	m.mu.Lock()
	c, ok := m.servers[name]
	if ok {
		delete(m.servers, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("server %q is not running", name)
	}

	m.registry.UnregisterSource(name)
	return c.Close()
}

// IsKnownTool reports whether name belongs to a running server.
func (m *Manager) IsKnownTool(name string) bool {
	server, _, found := strings.Cut(name, NameSeparator)
	if !found {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.servers[server]
	return ok
}

// Servers lists the names of the running servers.
func (m *Manager) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	return names
}

// CloseAll stops every server and withdraws all of their tools.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	servers := m.servers
	m.servers = make(map[string]*client.Client)
	m.mu.Unlock()

	for name, c := range servers {
		m.registry.UnregisterSource(name)
		if err := c.Close(); err != nil {
			log.Warn("closing tool server", zap.String("server", name), zap.Error(err))
		}
	}
}
