package status_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-pppring/status"
)

func testLogger() *slog.Logger {
	if os.Getenv("PPPRING_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPath(t *testing.T) {
	tests := map[string]string{
		"/dev/ttyS0":     "/etc/ha.d/ppp.d/ttyS0",
		"/dev/usb/ttyU1": "/etc/ha.d/ppp.d/usb.ttyU1",
		"/opt/tty9":      "/etc/ha.d/ppp.d/.opt.tty9",
	}
	for device, want := range tests {
		assert.Equal(t, want, status.Path("/etc/ha.d/ppp.d", device), device)
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ttyS0")
	require.NoError(t, os.WriteFile(path, []byte("10.0.0.2\nppp0\n4242\n10.0.0.1\n"), 0o644))

	a, err := status.Read(path)
	require.NoError(t, err)
	assert.Equal(t, status.Artifact{PeerAddr: "10.0.0.2", Interface: "ppp0", PID: 4242, LocalAddr: "10.0.0.1"}, a)
}

func TestReadIgnoresImplausiblePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttyS0")
	for _, pid := range []string{"1", "0", "-7", "junk"} {
		require.NoError(t, os.WriteFile(path, []byte("10.0.0.2\nppp0\n"+pid+"\n"), 0o644))
		a, err := status.Read(path)
		require.NoError(t, err)
		assert.Zero(t, a.PID, pid)
	}
}

func TestReadIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttyS0")
	require.NoError(t, os.WriteFile(path, []byte("10.0.0.2\n"), 0o644))
	_, err := status.Read(path)
	assert.ErrorIs(t, err, status.ErrIncomplete)
}

func TestReadMissing(t *testing.T) {
	_, err := status.Read(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteReadModTimeRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttyS1")
	in := status.Artifact{PeerAddr: "192.168.9.2", Interface: "ppp3", PID: 99, LocalAddr: "192.168.9.1"}
	require.NoError(t, status.Write(path, in))

	out, err := status.Read(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	stamp := time.Unix(1_700_000_000, 0)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
	mt, err := status.ModTime(path)
	require.NoError(t, err)
	assert.True(t, mt.Equal(stamp))

	require.NoError(t, status.Remove(path))
	assert.NoFileExists(t, path)
	assert.NoError(t, status.Remove(path), "removing twice is fine")
}

func TestWatcherWakesOnCreate(t *testing.T) {
	dir := t.TempDir()
	w, err := status.NewWatcher(dir, testLogger())
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "ttyS0")
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("10.0.0.2\nppp0\n"), 0o644)
	}()

	start := time.Now()
	require.NoError(t, w.Wait(context.Background(), path, 5*time.Second))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestWatcherTimeoutAndCancel(t *testing.T) {
	dir := t.TempDir()
	w, err := status.NewWatcher(dir, testLogger())
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "ttyS0")
	require.NoError(t, w.Wait(context.Background(), path, 20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Wait(ctx, path, time.Minute), context.Canceled)
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := status.NewWatcher(filepath.Join(t.TempDir(), "absent"), testLogger())
	assert.Error(t, err)
}
