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

// Package client implements the tool-server protocol client over a
// stdio transport. One client owns one subprocess.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
	"github.com/weftdb/weft/pkg/mcp/protocol"
)

// Transport is the message pipe to one tool server. The stdio transport
// satisfies it; tests substitute their own.
type Transport interface {
	Send(msg interface{}) error
	Receive(ctx context.Context) (*protocol.Response, error)
	Done() <-chan struct{}
	Close() error
}

// Default timeouts. ConnectTimeout bounds the initialize handshake,
// CallTimeout bounds each tool invocation.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultCallTimeout    = 30 * time.Second
)

// ErrTimeout marks a call that exceeded its deadline. Timed-out calls
// are retryable from the caller's point of view.
var ErrTimeout = errors.New("tool server call timed out")

// Config configures a client.
type Config struct {
	Name           string // server name, used in logs and errors
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
}

// Client speaks the tool-server protocol to one subprocess. Concurrent
// requests are demultiplexed by request ID.
type Client struct {
	cfg       Config
	transport Transport

	nextID  atomic.Int64
	pending map[string]chan *protocol.Response
	mu      sync.Mutex

	serverInfo protocol.Implementation

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wraps an already-started transport. Call Initialize before using
// the client.
func New(cfg Config, t Transport) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:       cfg,
		transport: t,
		pending:   make(map[string]chan *protocol.Response),
		ctx:       ctx,
		cancel:    cancel,
	}

	c.wg.Add(1)
	go c.receiveLoop()
	return c
}

// receiveLoop reads responses off the transport and routes each one to
// the waiter registered for its ID.
func (c *Client) receiveLoop() {
	defer c.wg.Done()
	for {
		resp, err := c.transport.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			log.Debug("tool server receive loop ended",
				zap.String("server", c.cfg.Name),
				zap.Error(err))
			c.failAllPending(err)
			return
		}

		if resp.ID == nil {
			// Server-initiated notification, nothing waits on it.
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID.String()]
		if ok {
			delete(c.pending, resp.ID.String())
		}
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

// failAllPending unblocks every in-flight call after the transport dies.
func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- &protocol.Response{
			JSONRPC: protocol.JSONRPCVersion,
			Error: &protocol.Error{
				Code:    protocol.InternalError,
				Message: fmt.Sprintf("transport closed: %v", err),
			},
		}
	}
}

// call sends a request and waits for its response or the deadline.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := protocol.NewNumericRequestID(c.nextID.Add(1))

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		rawParams = data
	}

	ch := make(chan *protocol.Response, 1)
	c.mu.Lock()
	c.pending[id.String()] = ch
	c.mu.Unlock()

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  rawParams,
	}
	if err := c.transport.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pending, id.String())
		c.mu.Unlock()
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id.String())
		c.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, c.cfg.Name, method)
		}
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// notify sends a notification, which has no ID and no response.
func (c *Client) notify(method string, params interface{}) error {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		rawParams = data
	}
	return c.transport.Send(&protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  method,
		Params:  rawParams,
	})
}

// Initialize performs the protocol handshake. Must be called once
// before ListTools or CallTool.
func (c *Client) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	result, err := c.call(ctx, "initialize", protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolVersion,
		ClientInfo: protocol.Implementation{
			Name:    "weft",
			Version: "1.0.0",
		},
	})
	if err != nil {
		return fmt.Errorf("initialize %s: %w", c.cfg.Name, err)
	}

	var init protocol.InitializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		return fmt.Errorf("initialize %s: decode: %w", c.cfg.Name, err)
	}
	c.serverInfo = init.ServerInfo

	if err := c.notify("notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialize %s: %w", c.cfg.Name, err)
	}

	log.Debug("tool server initialized",
		zap.String("server", c.cfg.Name),
		zap.String("impl", init.ServerInfo.Name),
		zap.String("version", init.ServerInfo.Version))
	return nil
}

// ServerInfo reports the implementation the server announced during the
// handshake.
func (c *Client) ServerInfo() protocol.Implementation {
	return c.serverInfo
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("list tools %s: %w", c.cfg.Name, err)
	}

	var list protocol.ListToolsResult
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, fmt.Errorf("list tools %s: decode: %w", c.cfg.Name, err)
	}
	return list.Tools, nil
}

// CallTool invokes one tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	result, err := c.call(ctx, "tools/call", protocol.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %s/%s: %w", c.cfg.Name, name, err)
	}

	var out protocol.CallToolResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("call tool %s/%s: decode: %w", c.cfg.Name, name, err)
	}
	return &out, nil
}

// Done is closed when the underlying subprocess exits.
func (c *Client) Done() <-chan struct{} {
	return c.transport.Done()
}

// Close stops the receive loop and shuts down the subprocess.
func (c *Client) Close() error {
	c.cancel()
	err := c.transport.Close()
	c.wg.Wait()
	return err
}
