package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testPrefix = "GWMAIN"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunValidateEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "port = 3000\n\n[upstreams]\nvideo_service = \"http://localhost:3003\"\n")
	t.Setenv(testPrefix+"_PORT", "8080")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path, "-env-prefix", testPrefix, "-dotenv", "", "-validate"}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, ":8080 (host: defaults, port: environment)") {
		t.Errorf("summary does not show env port:\n%s", out)
	}
	if !strings.Contains(out, "video_service = http://localhost:3003 (file)") {
		t.Errorf("summary missing upstream:\n%s", out)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	t.Setenv(testPrefix+"_PORT", "70000")
	t.Setenv(testPrefix+"_UPSTREAMS__BROKEN", "not-a-url")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "none.toml"), "-env-prefix", testPrefix, "-dotenv", ""}, &stdout, &stderr)

	// The file flag was given explicitly, so its absence is the first failure.
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	stderr.Reset()
	code = run(context.Background(), []string{"-env-prefix", testPrefix, "-dotenv", "", "-validate"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	msg := stderr.String()
	for _, want := range []string{"port", "upstreams.broken", "environment"} {
		if !strings.Contains(msg, want) {
			t.Errorf("diagnostic %q should mention %q", msg, want)
		}
	}
}

func TestRunReportsMalformedValue(t *testing.T) {
	t.Setenv(testPrefix+"_REQUEST_TIMEOUT_MS", "soon")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-env-prefix", testPrefix, "-dotenv", "", "-validate"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if msg := stderr.String(); !strings.Contains(msg, "request_timeout_ms") || !strings.Contains(msg, "environment") {
		t.Errorf("diagnostic = %q", msg)
	}
}

func TestRunLoadsDotenv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, []byte(testPrefix+"_UPSTREAMS__USER_SERVICE=http://localhost:3001\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv(testPrefix + "_UPSTREAMS__USER_SERVICE") })

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-env-prefix", testPrefix, "-dotenv", dotenv, "-validate"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "user_service = http://localhost:3001 (environment)") {
		t.Errorf("summary:\n%s", stdout.String())
	}
}

func TestRunMissingExplicitDotenv(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-env-prefix", testPrefix, "-dotenv", filepath.Join(t.TempDir(), "absent.env"), "-validate"}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
