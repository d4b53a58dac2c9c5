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

package manager

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/pkg/mcp/client"
	"github.com/weftdb/weft/pkg/mcp/protocol"
	"github.com/weftdb/weft/pkg/tool"
)

// stubTransport answers tools/call with a fixed text block.
type stubTransport struct {
	incoming chan *protocol.Response
	done     chan struct{}
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		incoming: make(chan *protocol.Response, 16),
		done:     make(chan struct{}),
	}
}

func (s *stubTransport) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if req.ID == nil {
		return nil
	}
	result, _ := json.Marshal(protocol.CallToolResult{Content: []protocol.ContentBlock{
		{Type: "text", Text: "pong"},
	}})
	s.incoming <- &protocol.Response{JSONRPC: protocol.JSONRPCVersion, ID: req.ID, Result: result}
	return nil
}

func (s *stubTransport) Receive(ctx context.Context) (*protocol.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errors.New("transport closed")
	case resp := <-s.incoming:
		return resp, nil
	}
}

func (s *stubTransport) Done() <-chan struct{} { return s.done }

func (s *stubTransport) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}

// addStubServer wires a fake server straight into the manager, skipping
// the subprocess launch.
func addStubServer(m *Manager, name string, tools []protocol.Tool) *stubTransport {
	st := newStubTransport()
	c := client.New(client.Config{Name: name}, st)

	m.mu.Lock()
	m.servers[name] = c
	m.mu.Unlock()

	for _, remote := range tools {
		m.registry.Register(m.makeDefinition(name, remote))
	}
	go m.watchExit(name, c)
	return st
}

func TestAddServerRejectsSeparatorInName(t *testing.T) {
	m := New(tool.NewRegistry())
	err := m.AddServer(context.Background(), ServerConfig{Name: "bad__name", Command: "true"})
	assert.Error(t, err)
}

func TestPrefixedToolCallRoundTrip(t *testing.T) {
	reg := tool.NewRegistry()
	m := New(reg)
	defer m.CloseAll()

	addStubServer(m, "jira", []protocol.Tool{{Name: "ping", Description: "pings"}})

	def, ok := reg.Get("jira__ping")
	require.True(t, ok)
	assert.Equal(t, "jira", def.Source)

	res := def.Handler(context.Background(), map[string]interface{}{})
	require.Equal(t, tool.StatusSuccess, res.Status)
	assert.Equal(t, "pong", res.Data["content"])
}

func TestIsKnownTool(t *testing.T) {
	m := New(tool.NewRegistry())
	defer m.CloseAll()

	addStubServer(m, "jira", nil)

	assert.True(t, m.IsKnownTool("jira__ping"))
	assert.False(t, m.IsKnownTool("other__ping"))
	assert.False(t, m.IsKnownTool("noseparator"))
}

func TestServerExitWithdrawsTools(t *testing.T) {
	reg := tool.NewRegistry()
	m := New(reg)

	st := addStubServer(m, "jira", []protocol.Tool{{Name: "ping"}})
	_, ok := reg.Get("jira__ping")
	require.True(t, ok)

	st.Close()

	require.Eventually(t, func() bool {
		_, still := reg.Get("jira__ping")
		return !still
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, m.Servers())
}

func TestRemoveServerWithdrawsTools(t *testing.T) {
	reg := tool.NewRegistry()
	m := New(reg)

	addStubServer(m, "jira", []protocol.Tool{{Name: "ping"}})
	require.NoError(t, m.RemoveServer("jira"))

	_, ok := reg.Get("jira__ping")
	assert.False(t, ok)
	assert.Error(t, m.RemoveServer("jira"))
}

func TestDecodeSchemaDegradesGracefully(t *testing.T) {
	schema := decodeSchema(nil)
	assert.Equal(t, "object", schema.Type)

	schema = decodeSchema(json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`))
	require.Contains(t, schema.Properties, "q")
	assert.Equal(t, "string", schema.Properties["q"].Type)
}
