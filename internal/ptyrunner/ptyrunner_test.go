package ptyrunner

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommandTimeout = 5 * time.Second
	cfg.SilenceTimeout = 5 * time.Second

	var sb strings.Builder
	res, err := Run(context.Background(), "bash", "echo hello-pty", "/tmp", nil, cfg, func(chunk []byte) {
		sb.Write(chunk)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
	if !strings.Contains(sb.String(), "hello-pty") {
		t.Fatalf("expected output to contain hello-pty, got %q", sb.String())
	}
}

func TestRunNonZeroExit(t *testing.T) {
	cfg := DefaultConfig()
	res, err := Run(context.Background(), "bash", "exit 7", "/tmp", nil, cfg, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got %d", res.ExitCode)
	}
}

func TestRunCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GracePeriod = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Result, 1)
	go func() {
		res, _ := Run(ctx, "bash", "sleep 30", "/tmp", nil, cfg, nil)
		done <- res
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		if !res.Cancelled {
			t.Fatalf("expected Cancelled=true, got %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunCommandTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommandTimeout = 200 * time.Millisecond
	cfg.GracePeriod = 100 * time.Millisecond
	cfg.SilenceTimeout = 0

	res, err := Run(context.Background(), "bash", "sleep 30", "/tmp", nil, cfg, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected TimedOut=true, got %+v", res)
	}
}
