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
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
	"github.com/weftdb/weft/pkg/adapter"
	"github.com/weftdb/weft/pkg/config"
	"github.com/weftdb/weft/pkg/llm"
	"github.com/weftdb/weft/pkg/llm/factory"
	"github.com/weftdb/weft/pkg/mcp/manager"
	"github.com/weftdb/weft/pkg/secret"
	"github.com/weftdb/weft/pkg/store"
	"github.com/weftdb/weft/pkg/tool"
)

// openStore opens the durable store at the configured data directory.
func openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, config.DatabasePath())
}

// secretStore resolves the configured credential backend.
func secretStore() (secret.Store, error) {
	return secret.FromConfig(cfg.Secret.Backend)
}

// resolveConnection loads a connection profile, decrypts its password
// and opens the engine adapter. An empty name means the active profile.
func resolveConnection(ctx context.Context, st *store.Store, name string) (*store.Connection, adapter.Adapter, error) {
	var conn *store.Connection
	var err error
	if name != "" {
		conn, err = st.GetConnection(ctx, name)
	} else {
		conn, err = st.ActiveConnection(ctx)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("no usable connection (add one with `weft connection add`): %w", err)
	}

	secrets, err := secretStore()
	if err != nil {
		return nil, nil, err
	}

	db, err := adapter.New(adapterConfig(conn, secrets.Decrypt(conn.Password)))
	if err != nil {
		return nil, nil, err
	}
	return conn, db, nil
}

// resolveProvider loads a provider profile and builds the LLM client.
// An empty name means the default profile.
func resolveProvider(ctx context.Context, st *store.Store, name string) (*store.Provider, llm.Provider, error) {
	var prof *store.Provider
	var err error
	if name != "" {
		prof, err = st.GetProvider(ctx, name)
	} else {
		prof, err = st.DefaultProvider(ctx)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("no usable provider (add one with `weft provider add`): %w", err)
	}

	secrets, err := secretStore()
	if err != nil {
		return nil, nil, err
	}

	client, err := factory.New(factory.Options{
		Kind:     prof.Kind,
		APIKey:   secrets.Decrypt(prof.APIKey),
		Model:    prof.Model,
		BaseURL:  prof.BaseURL,
		Language: cfg.Language,
	})
	if err != nil {
		return nil, nil, err
	}
	return prof, client, nil
}

// connectionByID looks a profile up by its stable id, as stored on
// migration tasks.
func connectionByID(ctx context.Context, st *store.Store, id string) (*store.Connection, error) {
	conns, err := st.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range conns {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("connection %s: %w", id, store.ErrNotFound)
}

// openAdapterByID opens an adapter over the profile with the given id.
func openAdapterByID(ctx context.Context, st *store.Store, id string) (adapter.Adapter, error) {
	conn, err := connectionByID(ctx, st, id)
	if err != nil {
		return nil, err
	}
	secrets, err := secretStore()
	if err != nil {
		return nil, err
	}
	return adapter.New(adapterConfig(conn, secrets.Decrypt(conn.Password)))
}

// adapterConfig rebuilds the adapter config from a stored profile with
// the password already decrypted.
func adapterConfig(conn *store.Connection, password string) adapter.Config {
	return adapter.Config{
		Kind:     conn.Kind,
		Host:     conn.Host,
		Port:     conn.Port,
		Database: conn.Database,
		Username: conn.Username,
		Password: password,
	}
}

// startToolServers launches every enabled external tool server and
// registers their tools. Startup failures are logged and skipped so one
// broken server does not take the session down.
func startToolServers(ctx context.Context, st *store.Store, registry *tool.Registry) *manager.Manager {
	m := manager.New(registry)

	servers, err := st.ListMCPServers(ctx, true)
	if err != nil {
		log.Warn("listing tool servers failed", zap.Error(err))
		return m
	}
	for _, srv := range servers {
		err := m.AddServer(ctx, manager.ServerConfig{
			Name:           srv.Name,
			Command:        srv.Command,
			Args:           srv.Args,
			Env:            srv.Env,
			ConnectTimeout: time.Duration(cfg.ToolCall.ConnectTimeoutSeconds) * time.Second,
			CallTimeout:    time.Duration(cfg.ToolCall.CallTimeoutSeconds) * time.Second,
		})
		if err != nil {
			log.Warn("tool server unavailable",
				zap.String("server", srv.Name),
				zap.Error(err))
		}
	}
	return m
}
