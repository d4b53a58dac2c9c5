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

// Package transport provides the stdio transport for tool-server
// subprocesses. Messages are newline-delimited JSON on the child's
// stdin/stdout; stderr is drained to the log.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
	"github.com/weftdb/weft/pkg/mcp/protocol"
)

// killTimeout bounds how long Close waits for a graceful exit before
// killing the child.
const killTimeout = 5 * time.Second

// StdioConfig configures a subprocess transport.
type StdioConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
}

// Stdio runs a tool server as a child process and exchanges
// newline-framed JSON-RPC messages over its pipes.
type Stdio struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	writeMu sync.Mutex

	done    chan struct{}
	waitErr error

	closeOnce sync.Once
}

// NewStdio starts the child process and wires up its pipes.
func NewStdio(cfg StdioConfig) (*Stdio, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("transport: command is required")
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: start %s: %w", cfg.Command, err)
	}

	t := &Stdio{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		done:   make(chan struct{}),
	}

	go t.drainStderr(stderr, cfg.Command)
	go func() {
		t.waitErr = cmd.Wait()
		close(t.done)
	}()

	return t, nil
}

// drainStderr forwards the child's stderr lines to the log so server
// diagnostics are not lost.
func (t *Stdio) drainStderr(stderr io.Reader, command string) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		log.Debug("tool server stderr",
			zap.String("command", command),
			zap.String("line", scanner.Text()))
	}
}

// Send writes one message followed by a newline. Safe for concurrent use.
func (t *Stdio) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Receive blocks until the next complete message arrives or ctx is done.
func (t *Stdio) Receive(ctx context.Context) (*protocol.Response, error) {
	type readResult struct {
		line []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		line, err := t.stdout.ReadBytes('\n')
		resultCh <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("transport: read: %w", res.err)
		}
		var resp protocol.Response
		if err := json.Unmarshal(res.line, &resp); err != nil {
			return nil, fmt.Errorf("transport: decode: %w", err)
		}
		return &resp, nil
	}
}

// Done is closed when the child process exits for any reason.
func (t *Stdio) Done() <-chan struct{} {
	return t.done
}

// ExitErr reports the child's exit error. Only valid after Done is closed.
func (t *Stdio) ExitErr() error {
	return t.waitErr
}

// Close shuts the child down: close stdin, wait for exit, kill after a
// timeout if it does not go quietly.
func (t *Stdio) Close() error {
	var err error
	t.closeOnce.Do(func() {
		_ = t.stdin.Close()

		select {
		case <-t.done:
		case <-time.After(killTimeout):
			log.Warn("tool server did not exit, killing",
				zap.String("command", t.cmd.Path))
			_ = t.cmd.Process.Kill()
			<-t.done
		}
		err = nil
	})
	return err
}
