package local

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipUnsupported(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("local connector requires a POSIX shell")
	}
}

func TestExecute(t *testing.T) {
	skipUnsupported(t)

	tests := []struct {
		name       string
		cmd        string
		wantStdout string
		wantStderr string
		wantCode   int
	}{
		{"stdout", "echo hello", "hello\n", "", 0},
		{"stderr and exit code", "echo oops >&2; exit 3", "", "oops\n", 3},
		{"pipeline", "printf 'a\\nb\\nc\\n' | head -n 2", "a\nb\n", "", 0},
		{"unknown command", "definitely-not-a-command-xyz", "", "", 127},
	}

	c := New()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Execute(context.Background(), tt.cmd)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if res.ExitCode != tt.wantCode {
				t.Errorf("exit code = %d, want %d", res.ExitCode, tt.wantCode)
			}
			if res.Stdout != tt.wantStdout {
				t.Errorf("stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
			if tt.wantStderr != "" && res.Stderr != tt.wantStderr {
				t.Errorf("stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
		})
	}
}

func TestExecuteTimeout(t *testing.T) {
	skipUnsupported(t)

	tests := []struct {
		name string
		cmd  string
	}{
		{"single command", "sleep 5"},
		{"pipeline", "sleep 5 | cat"},
		{"background child holding stdout", "sleep 5 & wait"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := New().Execute(ctx, tt.cmd)
			if err == nil {
				t.Fatal("expected timeout error")
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected DeadlineExceeded, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > 3*time.Second {
				t.Errorf("command was not killed on timeout, took %s", elapsed)
			}
		})
	}
}

func TestWithShell(t *testing.T) {
	c := New(WithShell("/bin/bash", "-lc"))
	if c.shell != "/bin/bash" || len(c.shellArgs) != 1 || c.shellArgs[0] != "-lc" {
		t.Errorf("unexpected shell %s %v", c.shell, c.shellArgs)
	}
}

func TestString(t *testing.T) {
	if s := New().String(); !strings.HasPrefix(s, "local://") {
		t.Errorf("unexpected description %q", s)
	}
}
