// Package ptyrunner implements the PTY/Process Runner: it spawns shell
// commands inside a pseudoterminal to preserve interactive behavior and
// colors, merges stdout/stderr as the PTY sees them, and enforces the
// command + silence timeouts and SIGINT -> SIGTERM -> SIGKILL cancellation
// ladder from spec.md §4.6. Grounded on the pack's sole PTY usage,
// vellankikoti-kubilitics-os-emergent/kubilitics-backend's
// internal/api/rest/shell_stream.go (process-group spawn via
// github.com/creack/pty, merged-stream io.Copy, bounded drain-on-exit).
package ptyrunner

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Config bounds one command's execution.
type Config struct {
	// CommandTimeout bounds total wall time.
	CommandTimeout time.Duration
	// SilenceTimeout bounds time since the last byte was read (catches
	// hung commands that still hold the PTY open).
	SilenceTimeout time.Duration
	// GracePeriod is how long to wait after SIGINT before escalating to
	// SIGTERM, and after SIGTERM before SIGKILL.
	GracePeriod time.Duration
	// Cols/Rows set the initial PTY window size.
	Cols, Rows int
}

// DefaultConfig matches spec.md §6's per_tool_timeouts defaults for
// shell-class tools.
func DefaultConfig() Config {
	return Config{
		CommandTimeout: 120 * time.Second,
		SilenceTimeout: 60 * time.Second,
		GracePeriod:    3 * time.Second,
		Cols:           120,
		Rows:           40,
	}
}

// Result is the terminal outcome of one command (spec.md §4.6: "records
// {exit_code, signal, duration, bytes_out}").
type Result struct {
	ExitCode  int
	Signal    string
	Duration  time.Duration
	BytesOut  int64
	TimedOut  bool
	Silenced  bool
	Cancelled bool
}

// OutputFunc receives streamed chunks as they arrive (tee to the UI and to
// the Output Spooler, per spec.md §4.6).
type OutputFunc func(chunk []byte)

// Run spawns `shell -c command` inside a PTY in its own process group,
// streaming merged stdout/stderr to onOutput as raw byte chunks. It
// blocks until the command exits, the command/silence timeout trips, or
// ctx is cancelled (steering Stop / CancelCurrentTool).
func Run(ctx context.Context, shell, command, cwd string, env []string, cfg Config, onOutput OutputFunc) (*Result, error) {
	start := time.Now()

	cmd := exec.Command(shell, "-c", command)
	cmd.Dir = cwd
	if env != nil {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("ptyrunner: start: %w", err)
	}
	defer ptmx.Close()

	_ = pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(cfg.Cols), Rows: uint16(cfg.Rows)})

	res := &Result{}
	var bytesOut int64
	var mu sync.Mutex

	lastByte := make(chan struct{}, 1)
	signalActivity := func() {
		select {
		case lastByte <- struct{}{}:
		default:
		}
	}

	readDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, rerr := ptmx.Read(buf)
			if n > 0 {
				mu.Lock()
				bytesOut += int64(n)
				mu.Unlock()
				signalActivity()
				if onOutput != nil {
					chunk := make([]byte, n)
					copy(chunk, buf[:n])
					onOutput(chunk)
				}
			}
			if rerr != nil {
				if rerr == io.EOF {
					readDone <- nil
				} else {
					readDone <- rerr
				}
				return
			}
		}
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var commandTimer, silenceTimer *time.Timer
	if cfg.CommandTimeout > 0 {
		commandTimer = time.NewTimer(cfg.CommandTimeout)
		defer commandTimer.Stop()
	}
	if cfg.SilenceTimeout > 0 {
		silenceTimer = time.NewTimer(cfg.SilenceTimeout)
		defer silenceTimer.Stop()
	}

	commandTimerC := func() <-chan time.Time {
		if commandTimer == nil {
			return nil
		}
		return commandTimer.C
	}
	silenceTimerC := func() <-chan time.Time {
		if silenceTimer == nil {
			return nil
		}
		return silenceTimer.C
	}

loop:
	for {
		select {
		case err := <-waitDone:
			res.ExitCode = exitCode(err)
			break loop
		case <-ctx.Done():
			res.Cancelled = true
			cancelProcess(cmd, cfg.GracePeriod)
			<-waitDone
			break loop
		case <-commandTimerC():
			res.TimedOut = true
			cancelProcess(cmd, cfg.GracePeriod)
			<-waitDone
			break loop
		case <-silenceTimerC():
			res.Silenced = true
			cancelProcess(cmd, cfg.GracePeriod)
			<-waitDone
			break loop
		case <-lastByte:
			if silenceTimer != nil {
				if !silenceTimer.Stop() {
					<-silenceTimer.C
				}
				silenceTimer.Reset(cfg.SilenceTimeout)
			}
		}
	}

	select {
	case <-readDone:
	case <-time.After(3 * time.Second):
	}

	mu.Lock()
	res.BytesOut = bytesOut
	mu.Unlock()
	res.Duration = time.Since(start)
	return res, nil
}

// cancelProcess sends the SIGINT -> grace -> SIGTERM -> grace -> SIGKILL
// ladder to the command's process group (spec.md §4.6).
func cancelProcess(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid

	signalGroup := func(sig syscall.Signal) {
		_ = syscall.Kill(-pgid, sig)
	}

	signalGroup(syscall.SIGINT)
	if waitExited(cmd, grace) {
		return
	}
	signalGroup(syscall.SIGTERM)
	if waitExited(cmd, grace) {
		return
	}
	signalGroup(syscall.SIGKILL)
}

// waitExited polls for process exit for up to `d`. It does not reap the
// process (the caller's cmd.Wait() goroutine owns that); it only checks
// liveness via signal 0.
func waitExited(cmd *exec.Cmd, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(cmd.Process.Pid, 0); err != nil {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
