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
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vtcode/vtcode/internal/log"
)

// STDIOConfig configures a subprocess-backed MCP server.
type STDIOConfig struct {
	Command string
	Args    []string
	Env     map[string]string
}

// STDIOTransport talks JSON-RPC over a child process's stdin/stdout, one
// message per line. The child runs in its own process group so shutdown
// signals do not leak to the agent's own group.
type STDIOTransport struct {
	config STDIOConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	mu            sync.Mutex
	pending       map[uint64]chan *JSONRPCResponse
	alive         bool
	notifyHandler NotificationHandler
	readLoopDone  chan struct{}
}

// NewSTDIOTransport creates a transport; Start spawns the server.
func NewSTDIOTransport(config STDIOConfig) *STDIOTransport {
	return &STDIOTransport{
		config:       config,
		pending:      make(map[uint64]chan *JSONRPCResponse),
		readLoopDone: make(chan struct{}),
	}
}

// Start spawns the subprocess and begins the read loop. Command, args,
// and env all support ${VAR} / ${VAR:-default} expansion.
func (t *STDIOTransport) Start(ctx context.Context) error {
	command := ExpandEnv(t.config.Command)
	args := ExpandEnvSlice(t.config.Args)
	env := ExpandEnvMap(t.config.Env)

	t.cmd = exec.CommandContext(ctx, command, args...)
	t.cmd.Env = BuildEnv(env)
	t.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	t.cmd.Stderr = os.Stderr

	var err error
	if t.stdin, err = t.cmd.StdinPipe(); err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if t.stdout, err = t.cmd.StdoutPipe(); err != nil {
		t.stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := t.cmd.Start(); err != nil {
		t.stdin.Close()
		t.stdout.Close()
		return fmt.Errorf("start MCP server: %w", err)
	}

	log.Logger().Debug("MCP stdio server started",
		zap.String("command", command), zap.Int("pid", t.cmd.Process.Pid))

	t.alive = true
	go t.readLoop()
	return nil
}

// readLoop routes each stdout line to the matching pending request or the
// notification handler, and fails all pending requests when the child's
// stdout closes.
func (t *STDIOTransport) readLoop() {
	defer close(t.readLoopDone)

	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp JSONRPCResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			ParseAndDispatchNotification(line, t.handler())
			continue
		}
		// A message without id/result/error is a server notification.
		if resp.ID == 0 && resp.Result == nil && resp.Error == nil {
			ParseAndDispatchNotification(line, t.handler())
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}

	if err := scanner.Err(); err != nil {
		log.Logger().Warn("MCP stdio read loop ended", zap.Error(err))
	}

	t.mu.Lock()
	t.alive = false
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()
}

func (t *STDIOTransport) handler() NotificationHandler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notifyHandler
}

// writeLine marshals v and writes it as one newline-terminated message.
func (t *STDIOTransport) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	t.mu.Lock()
	_, err = t.stdin.Write(append(data, '\n'))
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Send writes a request and blocks until its response, the context's
// deadline, or the connection closing.
func (t *STDIOTransport) Send(ctx context.Context, req *JSONRPCRequest) (*JSONRPCResponse, error) {
	if !t.IsAlive() {
		return nil, fmt.Errorf("transport is not connected")
	}

	respCh := make(chan *JSONRPCResponse, 1)
	t.mu.Lock()
	t.pending[req.ID] = respCh
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
	}()

	if err := t.writeLine(req); err != nil {
		return nil, err
	}

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	select {
	case resp := <-respCh:
		if resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendNotification writes a fire-and-forget notification.
func (t *STDIOTransport) SendNotification(ctx context.Context, notif *JSONRPCNotification) error {
	if !t.IsAlive() {
		return fmt.Errorf("transport is not connected")
	}
	return t.writeLine(notif)
}

// Close closes stdin (signalling EOF), drains the read loop, then walks
// the child through SIGTERM and, after a grace window, SIGKILL.
func (t *STDIOTransport) Close() error {
	t.mu.Lock()
	t.alive = false
	t.mu.Unlock()

	if t.stdin != nil {
		t.stdin.Close()
	}

	select {
	case <-t.readLoopDone:
	case <-time.After(2 * time.Second):
	}

	if t.cmd != nil && t.cmd.Process != nil {
		t.cmd.Process.Signal(syscall.SIGTERM)

		done := make(chan error, 1)
		go func() { done <- t.cmd.Wait() }()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.cmd.Process.Kill()
			<-done
		}
	}
	return nil
}

// IsAlive reports whether the child is still connected.
func (t *STDIOTransport) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive
}

// SetNotificationHandler registers the sink for server notifications.
func (t *STDIOTransport) SetNotificationHandler(handler NotificationHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifyHandler = handler
}
