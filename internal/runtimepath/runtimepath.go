package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir returns the runtime directory used for the IPC socket. Priority:
// 1) XDG_RUNTIME_DIR (if set)
// 2) /run/user/<uid> (if present)
// 3) /tmp/compwm-runtime-<uid> (created)
func Dir() (string, error) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}

	tmpDir := fmt.Sprintf("/tmp/compwm-runtime-%d", uid)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return tmpDir, nil
}

// SocketPath returns the IPC socket path for the window manager running on
// display. An empty display means $DISPLAY. Each display gets its own
// socket since each runs its own manager.
func SocketPath(display string) (string, error) {
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, "compwm"+displaySuffix(display)+".sock"), nil
}

// displaySuffix turns ":0.0" or "host:1" into "-0" or "-host-1".
func displaySuffix(display string) string {
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	if display == "" {
		return ""
	}
	host, num, ok := strings.Cut(display, ":")
	if !ok {
		num, host = display, ""
	}
	if i := strings.IndexByte(num, '.'); i >= 0 {
		num = num[:i]
	}
	host = strings.NewReplacer("/", "_", ":", "_").Replace(host)
	if host != "" {
		return "-" + host + "-" + num
	}
	return "-" + num
}
