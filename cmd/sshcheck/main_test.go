package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/eugenetaranov/sshcheck/internal/config"
	"github.com/eugenetaranov/sshcheck/internal/output"
	"github.com/eugenetaranov/sshcheck/internal/testutil/sshserver"
)

const (
	testUser     = "admin"
	testPassword = "correct horse"
)

// run executes the CLI in-process with an empty config file.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("color: false\n"), 0o600))
	return runWithConfig(t, cfg, args...)
}

func runWithConfig(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &stdout, &stderr)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.Execute()
	t.Logf("stderr:\n%s", stderr.String())
	return stdout.String(), err
}

func startServer(t *testing.T) *sshserver.Server {
	t.Helper()

	srv := sshserver.Start(t, testUser, testPassword)
	srv.Handle("uptime", sshserver.Response{Stdout: " 12:00:00 up 1 day\n"})
	srv.Handle("free -m", sshserver.Response{Stdout: "Mem: 2000 1000\n"})
	srv.Handle("df -h --output=source,fstype,size,used,avail,pcent,target -x tmpfs -x devtmpfs",
		sshserver.Response{Stderr: "df: permission denied\n", ExitCode: 1})
	srv.Handle("top -bn1 | head -n 5", sshserver.Response{Stdout: "top - 12:00:00\n"})
	return srv
}

func target(srv *sshserver.Server) []string {
	return []string{"-H", srv.Host(), "-p", strconv.Itoa(srv.Port()), "-u", testUser}
}

func TestLoginCommand(t *testing.T) {
	srv := startServer(t)

	t.Run("success", func(t *testing.T) {
		out, err := run(t, append([]string{"login", "--password", testPassword}, target(srv)...)...)
		require.NoError(t, err)
		assert.Contains(t, out, "✓ Login successful!")
		assert.Contains(t, out, "Responsible use only")
	})

	t.Run("password from environment", func(t *testing.T) {
		t.Setenv(PasswordEnv, testPassword)
		out, err := run(t, append([]string{"login"}, target(srv)...)...)
		require.NoError(t, err)
		assert.Contains(t, out, "Login successful!")
	})

	t.Run("wrong password", func(t *testing.T) {
		out, err := run(t, append([]string{"login", "--password", "nope"}, target(srv)...)...)
		assert.True(t, errors.Is(err, errFailed))
		assert.Contains(t, out, "✗ Authentication failed – bad username or password.")
	})

	t.Run("json output", func(t *testing.T) {
		out, err := run(t, append([]string{"login", "-o", "json", "--password", testPassword}, target(srv)...)...)
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":true,"message":"Login successful!"}`, out)
	})
}

func TestMissingFields(t *testing.T) {
	t.Setenv(PasswordEnv, "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"login without host", []string{"login", "-u", "u", "--password", "p"}, msgFillLogin},
		{"login without password", []string{"login", "-H", "h", "-u", "u"}, msgFillLogin},
		{"diagnostics without user", []string{"diagnostics", "-H", "h", "--password", "p"}, msgFillDiagnostics},
		{"utilisation alias", []string{"utilisation", "-H", "h", "-u", "u"}, msgFillDiagnostics},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			assert.True(t, errors.Is(err, errFailed))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestInvalidPort(t *testing.T) {
	_, err := run(t, "login", "-H", "h", "-u", "u", "--password", "p", "-p", "70000")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errFailed))
	assert.Contains(t, err.Error(), "invalid config: port must be between 1 and 65535")
}

func TestInvalidAliasPort(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	doc := "color: false\nhosts:\n  lab:\n    host: 127.0.0.1\n    port: 70000\n    user: u\n"
	require.NoError(t, os.WriteFile(cfg, []byte(doc), 0o600))

	for _, args := range [][]string{
		{"login", "lab", "--password", "p"},
		{"hosts"},
	} {
		_, err := runWithConfig(t, cfg, args...)
		require.Error(t, err)
		assert.False(t, errors.Is(err, errFailed))
		assert.Contains(t, err.Error(), "hosts[lab].port must be between 1 and 65535")
	}
}

func TestParamsValidatedAfterMerge(t *testing.T) {
	var stdout bytes.Buffer
	a := &app{
		opts: &options{stdout: &stdout, stderr: io.Discard, password: "p"},
		cfg: &config.Config{
			Port:    22,
			Timeout: time.Second,
			Hosts: map[string]config.Host{
				"lab": {Host: "127.0.0.1", Port: 70000, User: "u"},
			},
		},
		log: zaptest.NewLogger(t),
		out: output.New(&stdout),
	}

	_, ok, err := a.params(&cobra.Command{}, "lab", msgFillLogin)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "Port must be between 1 and 65535")
	assert.Empty(t, stdout.String())

	_, ok, err = a.params(&cobra.Command{}, "nope", msgFillLogin)
	require.Error(t, err)
	assert.False(t, ok)
}

func TestDiagnosticsCommand(t *testing.T) {
	srv := startServer(t)

	t.Run("text", func(t *testing.T) {
		out, err := run(t, append([]string{"diagnostics", "--password", testPassword}, target(srv)...)...)
		require.NoError(t, err)
		assert.Contains(t, out, "✓ UPTIME")
		assert.Contains(t, out, "up 1 day")
		assert.Contains(t, out, "✗ DISK")
		assert.Contains(t, out, "df: permission denied")
		assert.Contains(t, out, "failed: disk")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, append([]string{"diag", "-o", "json", "--password", testPassword}, target(srv)...)...)
		require.NoError(t, err)

		var decoded struct {
			Success bool                         `json:"success"`
			Data    map[string]map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.True(t, decoded.Success)
		assert.Len(t, decoded.Data, 4)
		assert.Equal(t, "df: permission denied", decoded.Data["disk"]["error"])
		assert.Equal(t, "12:00:00 up 1 day", decoded.Data["uptime"]["output"])
	})

	t.Run("auth failure", func(t *testing.T) {
		out, err := run(t, append([]string{"diagnostics", "--password", "nope"}, target(srv)...)...)
		assert.True(t, errors.Is(err, errFailed))
		assert.Contains(t, out, "✗ Authentication failed\n")
	})

	t.Run("connection refused", func(t *testing.T) {
		port := sshserver.ClosedPort(t)
		out, err := run(t, "diagnostics", "-H", "127.0.0.1", "-p", strconv.Itoa(port), "-u", "u", "--password", "p")
		assert.True(t, errors.Is(err, errFailed))
		assert.Contains(t, out, "Connection failed: ")
	})
}

func TestLocalDiagnostics(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("local diagnostics require a POSIX shell")
	}

	out, err := run(t, "diagnostics", "--local", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"uptime"`)
	assert.Contains(t, out, `"cpu"`)

	_, err = run(t, "diagnostics", "--local", "web")
	assert.Error(t, err)
}

func TestHostAlias(t *testing.T) {
	srv := startServer(t)

	cfg := filepath.Join(t.TempDir(), "config.yaml")
	doc := "color: false\nhosts:\n  lab:\n    host: " + srv.Host() +
		"\n    port: " + strconv.Itoa(srv.Port()) + "\n    user: " + testUser + "\n"
	require.NoError(t, os.WriteFile(cfg, []byte(doc), 0o600))

	out, err := runWithConfig(t, cfg, "login", "lab", "--password", testPassword)
	require.NoError(t, err)
	assert.Contains(t, out, "Login successful!")

	out, err = runWithConfig(t, cfg, "hosts")
	require.NoError(t, err)
	assert.Contains(t, out, "lab")
	assert.Contains(t, out, testUser+"@"+srv.Addr())

	_, err = runWithConfig(t, cfg, "login", "missing", "--password", testPassword)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown host alias "missing"`)
}

func TestCommandsCommand(t *testing.T) {
	out, err := run(t, "commands")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "uptime")
	assert.Contains(t, lines[2], "df -h")

	out, err = run(t, "commands", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "label: memory")
	assert.Contains(t, out, "command: free -m")
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := run(t, "commands", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output must be one of text, json, yaml")
}
