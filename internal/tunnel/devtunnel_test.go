package tunnel

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"Connect via browser: https://abc123-4099.usw2.devtunnels.ms", "https://abc123-4099.usw2.devtunnels.ms"},
		{"Inspect network activity: https://abc123-4099-inspect.usw2.devtunnels.ms extra", "https://abc123-4099-inspect.usw2.devtunnels.ms"},
		{"Hosting port: 4099", ""},
		{"https://example.com", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseURL(tt.line), tt.line)
	}
}

func TestShareURL(t *testing.T) {
	got, err := ShareURL("https://abc-4099.usw2.devtunnels.ms/", "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "https://abc-4099.usw2.devtunnels.ms/?key=deadbeef", got)
}

func TestStartMissingBinary(t *testing.T) {
	m := &Manager{Binary: filepath.Join(t.TempDir(), "no-such-devtunnel")}
	err := m.Start(context.Background(), 4099)
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func fakeDevtunnel(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in")
	}
	path := filepath.Join(t.TempDir(), "devtunnel")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

func TestStartDiscoversURL(t *testing.T) {
	bin := fakeDevtunnel(t, `echo "Hosting port: $3"
echo "Connect via browser: https://fake-$3.usw2.devtunnels.ms"
exec sleep 30
`)
	m := &Manager{Binary: bin}
	require.NoError(t, m.Start(context.Background(), 4099))
	t.Cleanup(m.Stop)

	u, err := m.WaitURL(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://fake-4099.usw2.devtunnels.ms", u)

	m.Stop()
	assert.Empty(t, m.URL())
}

func TestWaitURLProcessExits(t *testing.T) {
	bin := fakeDevtunnel(t, "echo 'not logged in'\nexit 1\n")
	m := &Manager{Binary: bin}
	require.NoError(t, m.Start(context.Background(), 4099))

	_, err := m.WaitURL(context.Background(), 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited")
}

func TestWaitURLBeforeStart(t *testing.T) {
	_, err := NewManager().WaitURL(context.Background(), time.Millisecond)
	assert.Error(t, err)
}
