package main

import (
	"log/slog"
	"os"
	"os/exec"
	"syscall"
)

// spawn starts a configured command through the shell in its own session,
// so it outlives the window manager and never holds up the event loop.
func spawn(logger *slog.Logger, name, run string) {
	cmd := exec.Command("/bin/sh", "-c", run)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		logger.Warn("failed to start command", "command", name, "error", err)
		return
	}
	logger.Debug("started command", "command", name, "pid", cmd.Process.Pid)
	// Reap the child.
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Debug("command exited", "command", name, "error", err)
		}
	}()
}
