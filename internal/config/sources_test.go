package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const testPrefix = "GWTEST"

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadFileFormatsAgree(t *testing.T) {
	files := map[string]string{
		"config.toml": `
host = "127.0.0.1"
port = 4000
request_timeout_ms = 2500
cors_origins = ["https://app.example.com"]

[upstreams]
user_service = "http://localhost:3001"
video_service = "http://localhost:3003"

[log]
level = "debug"
`,
		"config.yaml": `
host: 127.0.0.1
port: 4000
request_timeout_ms: 2500
cors_origins:
  - https://app.example.com
upstreams:
  user_service: http://localhost:3001
  video_service: http://localhost:3003
log:
  level: debug
`,
		"config.json": `{
  "host": "127.0.0.1",
  "port": 4000,
  "request_timeout_ms": 2500,
  "cors_origins": ["https://app.example.com"],
  "upstreams": {
    "user_service": "http://localhost:3001",
    "video_service": "http://localhost:3003"
  },
  "log": {"level": "debug"}
}`,
	}

	var configs []*GatewayConfig
	for name, body := range files {
		layer, err := ReadFile(writeFile(t, name, body))
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", name, err)
		}
		if layer.Source() != SourceFile {
			t.Errorf("%s: Source() = %s, want file", name, layer.Source())
		}
		cfg, err := Resolve(DefaultsLayer(), layer)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", name, err)
		}
		if cfg.Port != 4000 || cfg.Upstreams["video_service"] != "http://localhost:3003" {
			t.Errorf("%s: unexpected config %+v", name, cfg)
		}
		configs = append(configs, cfg)
	}

	for i := 1; i < len(configs); i++ {
		if !reflect.DeepEqual(configs[0], configs[i]) {
			t.Errorf("formats disagree:\n%+v\n%+v", configs[0], configs[i])
		}
	}
}

func TestReadFileEmptyUpstreamsTable(t *testing.T) {
	path := writeFile(t, "config.toml", "port = 3000\n\n[upstreams]\n")
	layer, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	cfg, err := Resolve(DefaultsLayer(), layer)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(cfg.Upstreams) != 0 {
		t.Errorf("Upstreams = %v, want empty", cfg.Upstreams)
	}
}

func TestReadFileErrors(t *testing.T) {
	if _, err := ReadFile(writeFile(t, "config.ini", "port=1")); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := ReadFile(writeFile(t, "config.toml", "port = = 1")); err == nil {
		t.Error("expected error for broken TOML")
	}
	if _, err := ReadFile(writeFile(t, "config.yaml", "port: [1")); err == nil {
		t.Error("expected error for broken YAML")
	}
}

func TestReadEnv(t *testing.T) {
	t.Setenv(testPrefix+"_PORT", "8080")
	t.Setenv(testPrefix+"_CORS_ORIGINS", `["https://a.example"]`)
	t.Setenv(testPrefix+"_UPSTREAMS__USER_SERVICE", "http://localhost:3001")
	t.Setenv(testPrefix+"_LOG__LEVEL", "warn")
	t.Setenv(testPrefix+"OTHER", "ignored")

	layer, err := ReadEnv(testPrefix)
	if err != nil {
		t.Fatalf("ReadEnv() error = %v", err)
	}
	if layer.Source() != SourceEnv {
		t.Errorf("Source() = %s, want environment", layer.Source())
	}

	want := map[string]any{
		"port":                   "8080",
		"cors_origins":           `["https://a.example"]`,
		"upstreams.user_service": "http://localhost:3001",
		"log.level":              "warn",
	}
	for key, val := range want {
		got, ok := layer.Get(key)
		if !ok || got != val {
			t.Errorf("Get(%q) = %v, %v; want %v", key, got, ok, val)
		}
	}
	if layer.Len() != len(want) {
		t.Errorf("Keys() = %v, want only %d keys", layer.Keys(), len(want))
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"APP_PORT", "port"},
		{"APP_REQUEST_TIMEOUT_MS", "request_timeout_ms"},
		{"APP_UPSTREAMS__VIDEO_SERVICE", "upstreams.video_service"},
		{"APP_", ""},
		{"APP__HIDDEN", ""},
	}
	for _, tt := range tests {
		if got := envKey("APP_", tt.name); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := writeFile(t, "config.toml", "port = 3000\n")
	t.Setenv("APP_PORT", "8080")

	cfg, err := Load(Options{FilePath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.SourceOf("port") != SourceEnv {
		t.Errorf("SourceOf(port) = %s, want environment", cfg.SourceOf("port"))
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")

	cfg, err := Load(Options{FilePath: missing, EnvPrefix: testPrefix})
	if err != nil {
		t.Fatalf("Load() with optional missing file error = %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want default 3000", cfg.Port)
	}

	_, err = Load(Options{FilePath: missing, FileRequired: true, EnvPrefix: testPrefix})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() with required missing file error = %v, want ErrNotExist", err)
	}
}

func TestLoadMalformedEnvNamesKey(t *testing.T) {
	t.Setenv(testPrefix+"_PORT", "eighty")

	_, err := Load(Options{EnvPrefix: testPrefix})
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("Load() error = %v, want *MalformedError", err)
	}
	if malformed.Key != "port" || malformed.Source != SourceEnv {
		t.Errorf("got key %q from %s", malformed.Key, malformed.Source)
	}
}
