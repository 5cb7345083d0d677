// Package tunnel exposes the local dashboard through an Azure Dev Tunnel so
// an interview can be opened from another machine.
package tunnel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"
)

var tunnelURLPattern = regexp.MustCompile(`https://[^\s]*\.devtunnels\.ms[^\s]*`)

// ErrNotInstalled is returned by Start when the devtunnel CLI is missing.
var ErrNotInstalled = errors.New("devtunnel CLI not found in PATH")

// Manager runs `devtunnel host` for the dashboard port.
type Manager struct {
	// Binary is the devtunnel executable. Defaults to "devtunnel".
	Binary string

	mu      sync.Mutex
	cmd     *exec.Cmd
	url     string
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	ready   chan struct{}
}

// NewManager returns a Manager using the devtunnel binary on PATH.
func NewManager() *Manager {
	return &Manager{Binary: "devtunnel"}
}

func (m *Manager) binary() string {
	if m.Binary == "" {
		return "devtunnel"
	}
	return m.Binary
}

// Start hosts a tunnel to port. The public URL is discovered asynchronously;
// use WaitURL to block for it.
func (m *Manager) Start(ctx context.Context, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	if _, err := exec.LookPath(m.binary()); err != nil {
		return ErrNotInstalled
	}

	// The dashboard enforces its own access key, so the tunnel itself is anonymous.
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, m.binary(), "host", "-p", strconv.Itoa(port), "--allow-anonymous")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("starting devtunnel: %w", err)
	}

	m.cmd = cmd
	m.cancel = cancel
	m.running = true
	m.url = ""
	m.done = make(chan struct{})
	m.ready = make(chan struct{})
	slog.Info("devtunnel process started", "port", port, "pid", cmd.Process.Pid)

	go m.watch(cmd, bufio.NewScanner(stdout), m.ready, m.done)
	return nil
}

func (m *Manager) watch(cmd *exec.Cmd, scanner *bufio.Scanner, ready, done chan struct{}) {
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		slog.Debug("devtunnel output", "line", line)
		if found {
			continue
		}
		if u := ParseURL(line); u != "" {
			found = true
			m.mu.Lock()
			m.url = u
			m.mu.Unlock()
			slog.Info("devtunnel URL discovered", "url", u)
			close(ready)
		}
	}

	err := cmd.Wait()

	m.mu.Lock()
	m.running = false
	m.url = ""
	m.cmd = nil
	m.mu.Unlock()

	slog.Info("devtunnel process exited", "error", err)
	close(done)
}

// WaitURL blocks until the tunnel reports its public URL, the process exits,
// or timeout passes.
func (m *Manager) WaitURL(ctx context.Context, timeout time.Duration) (string, error) {
	m.mu.Lock()
	ready, done := m.ready, m.done
	m.mu.Unlock()
	if ready == nil {
		return "", errors.New("tunnel not started")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return m.URL(), nil
	case <-done:
		return "", errors.New("devtunnel exited before reporting a URL (try `devtunnel user login`)")
	case <-timer.C:
		return "", fmt.Errorf("no tunnel URL after %s", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop terminates the devtunnel process and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	running := m.running
	m.mu.Unlock()
	if !running {
		return
	}
	cancel()
	<-done
}

// URL returns the public tunnel URL, or "" before it is known.
func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// ParseURL extracts a devtunnels.ms URL from one line of CLI output.
func ParseURL(line string) string {
	return tunnelURLPattern.FindString(line)
}

// ShareURL appends the dashboard access key to a tunnel URL.
func ShareURL(tunnelURL, key string) (string, error) {
	u, err := url.Parse(tunnelURL)
	if err != nil {
		return "", fmt.Errorf("parsing tunnel URL: %w", err)
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
