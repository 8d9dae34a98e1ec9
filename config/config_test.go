package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-pppring"
	"github.com/frobware/go-pppring/config"
)

func TestValidateLocalAddr(t *testing.T) {
	tests := []struct {
		addr string
		ok   bool
	}{
		{"10.1.2.3", true},
		{"10.255.255.255", true},
		{"172.16.0.1", true},
		{"172.31.255.254", true},
		{"192.168.1.1", true},
		{"8.8.8.8", false},
		{"172.32.0.1", false},
		{"172.15.255.255", false},
		{"192.169.0.1", false},
		{"11.0.0.1", false},
		{"fd00::1", false},
		{"10.1.2", false},
		{"not-an-ip", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := config.ValidateLocalAddr(tt.addr)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var invalid *pppring.ErrInvalidAddress
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.addr, invalid.Addr)
		})
	}
}

func TestValidateSerialDevice(t *testing.T) {
	regular := filepath.Join(t.TempDir(), "ttyFake")
	require.NoError(t, os.WriteFile(regular, nil, 0o600))

	tests := []struct {
		name   string
		path   string
		ok     bool
		reason string
	}{
		{name: "char device", path: "/dev/null", ok: true},
		{name: "relative", path: "ttyS0", reason: "not full pathname"},
		{name: "missing", path: "/dev/does-not-exist-pppring", reason: "nonexistent"},
		{name: "regular file", path: regular, reason: "not a char device"},
		{name: "directory", path: t.TempDir(), reason: "not a char device"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.ValidateSerialDevice(tt.path)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var invalid *pppring.ErrInvalidDevice
			require.ErrorAs(t, err, &invalid)
			assert.Contains(t, invalid.Reason, tt.reason)
		})
	}
}

func TestValidateSerialDeviceWrapsStatError(t *testing.T) {
	err := config.ValidateSerialDevice("/dev/does-not-exist-pppring")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseMedia(t *testing.T) {
	specs, err := config.ParseMedia("/dev/null 10.0.0.1   /dev/zero 192.168.7.2", 694)
	require.NoError(t, err)
	assert.Equal(t, []pppring.LinkSpec{
		{Device: "/dev/null", LocalAddr: "10.0.0.1", Port: 694},
		{Device: "/dev/zero", LocalAddr: "192.168.7.2", Port: 694},
	}, specs)

	specs, err = config.ParseMedia("ppp-udp /dev/null 10.0.0.1", 700)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, 700, specs[0].Port)

	specs, err = config.ParseMedia("   ", 694)
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestParseMediaRejectsWholeLine(t *testing.T) {
	tests := map[string]string{
		"missing ip":      "/dev/null 10.0.0.1 /dev/zero",
		"public address":  "/dev/null 10.0.0.1 /dev/zero 8.8.8.8",
		"relative device": "ttyS0 10.0.0.1",
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			specs, err := config.ParseMedia(line, 694)
			assert.Error(t, err)
			assert.Nil(t, specs)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, 694, cfg.Ring.UDPPort)
	assert.Equal(t, 19200, cfg.Ring.Baud)
	assert.Equal(t, "/usr/sbin/pppd", cfg.Ring.Helper)
	assert.Equal(t, "/etc/ha.d/ppp.d", cfg.Ring.StatusDir)
	assert.Equal(t, "/etc/ha.d/ppp.d/start.msgs", cfg.Ring.HelperLogPath())
	assert.Equal(t, 30*time.Second, cfg.Ring.WatchdogBudget)
	assert.Equal(t, 2*time.Second, cfg.Ring.WatchdogInterval)
	assert.Equal(t, time.Second, cfg.Ring.OpenRetry)
	assert.Contains(t, cfg.Ring.HelperOptions, "noauth")
	assert.Contains(t, cfg.Ring.HelperOptions, "nodefaultroute")
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 7*24*time.Hour, cfg.Server.JournalRetention)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pppring.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[ring]
media = ["/dev/null 10.0.0.1"]
watchdog_budget = "10s"

[auth]
key = "s3cret"
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Ring.WatchdogBudget)
	assert.Equal(t, 694, cfg.Ring.UDPPort, "unset keys keep defaults")
	require.NoError(t, cfg.Validate())

	links, err := cfg.Links()
	require.NoError(t, err)
	assert.Equal(t, []pppring.LinkSpec{{Device: "/dev/null", LocalAddr: "10.0.0.1", Port: 694}}, links)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ring\nmedia ="), 0o600))
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		cfg := config.DefaultConfig()
		cfg.Ring.Media = []string{"/dev/null 10.0.0.1"}
		cfg.Auth.Key = "k"
		return cfg
	}
	require.NoError(t, func() error { c := valid(); return c.Validate() }())

	tests := map[string]func(*config.Config){
		"no key":             func(c *config.Config) { c.Auth.Key = "" },
		"no media":           func(c *config.Config) { c.Ring.Media = nil },
		"bad media":          func(c *config.Config) { c.Ring.Media = []string{"/dev/null 1.1.1.1"} },
		"duplicate device":   func(c *config.Config) { c.Ring.Media = []string{"/dev/null 10.0.0.1", "/dev/null 10.0.0.2"} },
		"port":               func(c *config.Config) { c.Ring.UDPPort = 0 },
		"ttl":                func(c *config.Config) { c.Ring.TTL = 0 },
		"interval > budget":  func(c *config.Config) { c.Ring.WatchdogInterval = time.Minute },
		"relative helper":    func(c *config.Config) { c.Ring.Helper = "pppd" },
		"zero open retry":    func(c *config.Config) { c.Ring.OpenRetry = 0 },
		"relative statusdir": func(c *config.Config) { c.Ring.StatusDir = "ppp.d" },
		"negative retention": func(c *config.Config) { c.Server.JournalRetention = -time.Hour },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoggingToSpec(t *testing.T) {
	c := config.LoggingConfig{Level: "warn"}
	assert.Equal(t, "warn", c.ToSpec())

	c = config.LoggingConfig{Components: map[string]string{"ring": "debug"}}
	assert.Equal(t, "info,ring=debug", c.ToSpec())
}

func TestRuntimeDirs(t *testing.T) {
	dirs, err := config.NewRuntimeDirs("/run/pppring")
	require.NoError(t, err)
	assert.Equal(t, "/run/pppring", dirs.Base())
	assert.Equal(t, "/run/pppring/state.db", dirs.DBPath())
	assert.Equal(t, "/run/pppring-sock/pppring.sock", dirs.SocketPath())
	assert.Equal(t, "/run/pppring/lock/LCK..ttyS0", dirs.LockPath("/dev/ttyS0"))
	assert.Equal(t, "/run/pppring/lock/LCK..usb.tty1", dirs.LockPath("/dev/usb/tty1"))

	_, err = config.NewRuntimeDirs("relative")
	assert.Error(t, err)
	_, err = config.NewRuntimeDirs("")
	assert.Error(t, err)

	tmp, err := config.NewRuntimeDirs(filepath.Join(t.TempDir(), "run"))
	require.NoError(t, err)
	require.NoError(t, tmp.EnsureDirectories())
	assert.DirExists(t, filepath.Dir(tmp.LockPath("/dev/ttyS0")))
	assert.DirExists(t, filepath.Dir(tmp.SocketPath()))
}
