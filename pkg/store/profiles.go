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
	"errors"
	"fmt"
)

// --- Database connection profiles ---

// SaveConnection inserts or updates a connection profile by name.
// conn.Password must already be the encrypted blob.
func (s *Store) SaveConnection(ctx context.Context, conn *Connection) error {
	if conn.ID == "" {
		conn.ID = newID()
	}
	now := nowNanos()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO connections (id, name, kind, host, port, database_name, username, password_enc, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT (name) DO UPDATE SET
				kind = excluded.kind, host = excluded.host, port = excluded.port,
				database_name = excluded.database_name, username = excluded.username,
				password_enc = excluded.password_enc, updated_at = excluded.updated_at`,
			conn.ID, conn.Name, conn.Kind, conn.Host, conn.Port,
			conn.Database, conn.Username, conn.Password, now, now)
		return err
	})
}

// GetConnection returns a connection by name.
func (s *Store) GetConnection(ctx context.Context, name string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, connectionColumns+" WHERE name = ?", name)
	return scanConnection(row)
}

// ActiveConnection returns the connection marked active, or ErrNotFound.
func (s *Store) ActiveConnection(ctx context.Context) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, connectionColumns+" WHERE is_active = 1")
	return scanConnection(row)
}

// ListConnections returns all connection profiles ordered by name.
func (s *Store) ListConnections(ctx context.Context) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx, connectionColumns+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var out []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

// SetActiveConnection marks the named connection active, clearing any prior
// active flag in the same transaction.
func (s *Store) SetActiveConnection(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE connections SET is_active = 0 WHERE is_active = 1"); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE connections SET is_active = 1, updated_at = ? WHERE name = ?", nowNanos(), name)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// DeleteConnection removes the named connection profile.
func (s *Store) DeleteConnection(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM connections WHERE name = ?", name)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

const connectionColumns = `
	SELECT id, name, kind, host, port, database_name, username, password_enc, is_active, created_at, updated_at
	FROM connections`

func scanConnection(row rowScanner) (*Connection, error) {
	var conn Connection
	var active int
	var created, updated int64
	err := row.Scan(&conn.ID, &conn.Name, &conn.Kind, &conn.Host, &conn.Port,
		&conn.Database, &conn.Username, &conn.Password, &active, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan connection: %w", err)
	}
	conn.IsActive = active != 0
	conn.CreatedAt = fromNanos(created)
	conn.UpdatedAt = fromNanos(updated)
	return &conn, nil
}

// --- LLM provider profiles ---

// SaveProvider inserts or updates a provider profile by name.
// p.APIKey must already be the encrypted blob.
func (s *Store) SaveProvider(ctx context.Context, p *Provider) error {
	if p.ID == "" {
		p.ID = newID()
	}
	now := nowNanos()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO providers (id, name, kind, api_key_enc, model, base_url, is_default, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT (name) DO UPDATE SET
				kind = excluded.kind, api_key_enc = excluded.api_key_enc,
				model = excluded.model, base_url = excluded.base_url,
				updated_at = excluded.updated_at`,
			p.ID, p.Name, p.Kind, p.APIKey, p.Model, p.BaseURL, now, now)
		return err
	})
}

// GetProvider returns a provider by name.
func (s *Store) GetProvider(ctx context.Context, name string) (*Provider, error) {
	row := s.db.QueryRowContext(ctx, providerColumns+" WHERE name = ?", name)
	return scanProvider(row)
}

// DefaultProvider returns the provider marked default, or ErrNotFound.
func (s *Store) DefaultProvider(ctx context.Context) (*Provider, error) {
	row := s.db.QueryRowContext(ctx, providerColumns+" WHERE is_default = 1")
	return scanProvider(row)
}

// ListProviders returns all provider profiles ordered by name.
func (s *Store) ListProviders(ctx context.Context) ([]*Provider, error) {
	rows, err := s.db.QueryContext(ctx, providerColumns+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var out []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetDefaultProvider marks the named provider default, clearing any prior
// default flag in the same transaction.
func (s *Store) SetDefaultProvider(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE providers SET is_default = 0 WHERE is_default = 1"); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE providers SET is_default = 1, updated_at = ? WHERE name = ?", nowNanos(), name)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// DeleteProvider removes the named provider profile.
func (s *Store) DeleteProvider(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM providers WHERE name = ?", name)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

const providerColumns = `
	SELECT id, name, kind, api_key_enc, model, base_url, is_default, created_at, updated_at
	FROM providers`

func scanProvider(row rowScanner) (*Provider, error) {
	var p Provider
	var def int
	var created, updated int64
	err := row.Scan(&p.ID, &p.Name, &p.Kind, &p.APIKey, &p.Model, &p.BaseURL, &def, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan provider: %w", err)
	}
	p.IsDefault = def != 0
	p.CreatedAt = fromNanos(created)
	p.UpdatedAt = fromNanos(updated)
	return &p, nil
}

// --- External tool-server configs ---

// SaveMCPServer inserts or updates an external tool-server config by name.
func (s *Store) SaveMCPServer(ctx context.Context, srv *MCPServer) error {
	if srv.ID == "" {
		srv.ID = newID()
	}
	args, err := json.Marshal(srv.Args)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}
	env, err := json.Marshal(srv.Env)
	if err != nil {
		return fmt.Errorf("failed to marshal env: %w", err)
	}
	enabled := 0
	if srv.Enabled {
		enabled = 1
	}
	now := nowNanos()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mcp_servers (id, name, command, args, env, enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET
				command = excluded.command, args = excluded.args, env = excluded.env,
				enabled = excluded.enabled, updated_at = excluded.updated_at`,
			srv.ID, srv.Name, srv.Command, string(args), string(env), enabled, now, now)
		return err
	})
}

// ListMCPServers returns all tool-server configs; when enabledOnly is true,
// disabled entries are filtered out.
func (s *Store) ListMCPServers(ctx context.Context, enabledOnly bool) ([]*MCPServer, error) {
	query := "SELECT id, name, command, args, env, enabled, created_at, updated_at FROM mcp_servers"
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool servers: %w", err)
	}
	defer rows.Close()

	var out []*MCPServer
	for rows.Next() {
		var srv MCPServer
		var args, env string
		var enabled int
		var created, updated int64
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Command, &args, &env, &enabled, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan tool server: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &srv.Args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args for %s: %w", srv.Name, err)
		}
		if err := json.Unmarshal([]byte(env), &srv.Env); err != nil {
			return nil, fmt.Errorf("failed to unmarshal env for %s: %w", srv.Name, err)
		}
		srv.Enabled = enabled != 0
		srv.CreatedAt = fromNanos(created)
		srv.UpdatedAt = fromNanos(updated)
		out = append(out, &srv)
	}
	return out, rows.Err()
}

// DeleteMCPServer removes the named tool-server config.
func (s *Store) DeleteMCPServer(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM mcp_servers WHERE name = ?", name)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}
