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

package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/pkg/mcp/protocol"
)

// mockTransport echoes canned responses keyed by method.
type mockTransport struct {
	respond  func(req *protocol.Request) *protocol.Response
	incoming chan *protocol.Response
	done     chan struct{}
}

func newMockTransport(respond func(req *protocol.Request) *protocol.Response) *mockTransport {
	return &mockTransport{
		respond:  respond,
		incoming: make(chan *protocol.Response, 16),
		done:     make(chan struct{}),
	}
}

func (m *mockTransport) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if req.ID == nil {
		// Notification, no response.
		return nil
	}
	if resp := m.respond(&req); resp != nil {
		resp.ID = req.ID
		m.incoming <- resp
	}
	return nil
}

func (m *mockTransport) Receive(ctx context.Context) (*protocol.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, errors.New("transport closed")
	case resp := <-m.incoming:
		return resp, nil
	}
}

func (m *mockTransport) Done() <-chan struct{} { return m.done }

func (m *mockTransport) Close() error {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	return nil
}

func respondWith(result interface{}) *protocol.Response {
	data, _ := json.Marshal(result)
	return &protocol.Response{JSONRPC: protocol.JSONRPCVersion, Result: data}
}

func TestInitializeHandshake(t *testing.T) {
	var sawInitialize bool
	mt := newMockTransport(func(req *protocol.Request) *protocol.Response {
		if req.Method == "initialize" {
			sawInitialize = true
			return respondWith(protocol.InitializeResult{
				ProtocolVersion: protocol.ProtocolVersion,
				ServerInfo:      protocol.Implementation{Name: "fake", Version: "0.1"},
			})
		}
		return nil
	})

	c := New(Config{Name: "fake"}, mt)
	defer c.Close()

	require.NoError(t, c.Initialize(context.Background()))
	assert.True(t, sawInitialize)
	assert.Equal(t, "fake", c.ServerInfo().Name)
}

func TestListToolsAndCall(t *testing.T) {
	mt := newMockTransport(func(req *protocol.Request) *protocol.Response {
		switch req.Method {
		case "tools/list":
			return respondWith(protocol.ListToolsResult{Tools: []protocol.Tool{
				{Name: "echo", Description: "echoes input"},
			}})
		case "tools/call":
			var params protocol.CallToolParams
			_ = json.Unmarshal(req.Params, &params)
			return respondWith(protocol.CallToolResult{Content: []protocol.ContentBlock{
				{Type: "text", Text: params.Name + " ok"},
			}})
		}
		return nil
	})

	c := New(Config{Name: "fake"}, mt)
	defer c.Close()

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	out, err := c.CallTool(context.Background(), "echo", map[string]interface{}{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo ok", out.Text())
}

func TestCallToolServerError(t *testing.T) {
	mt := newMockTransport(func(req *protocol.Request) *protocol.Response {
		return &protocol.Response{
			JSONRPC: protocol.JSONRPCVersion,
			Error:   &protocol.Error{Code: protocol.InvalidParams, Message: "bad args"},
		}
	})

	c := New(Config{Name: "fake"}, mt)
	defer c.Close()

	_, err := c.CallTool(context.Background(), "echo", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad args")
}

func TestCallToolTimeoutIsRetryable(t *testing.T) {
	// Never respond: the call must hit its deadline.
	mt := newMockTransport(func(req *protocol.Request) *protocol.Response { return nil })

	c := New(Config{Name: "slow", CallTimeout: 50 * time.Millisecond}, mt)
	defer c.Close()

	_, err := c.CallTool(context.Background(), "echo", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestTransportDeathFailsPendingCalls(t *testing.T) {
	mt := newMockTransport(func(req *protocol.Request) *protocol.Response { return nil })
	c := New(Config{Name: "dying", CallTimeout: 5 * time.Second}, mt)
	defer c.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.CallTool(context.Background(), "echo", nil)
		errCh <- err
	}()

	// Give the call time to register, then kill the pipe.
	time.Sleep(20 * time.Millisecond)
	mt.Close()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport closed")
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not unblocked")
	}
}
