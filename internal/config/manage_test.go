package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestSetter(t *testing.T) (*Setter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aiassist", "config.json")
	return &Setter{Backend: NewFileBackend(path), Secrets: &mockSecrets{}}, path
}

func TestSetRoundTrip(t *testing.T) {
	m, path := newTestSetter(t)

	for key, value := range map[string]string{
		"server.port":          "4200",
		"ai.text_model":        "gpt-4o",
		"files.minio_use_ssl":  "true",
		"worker.poll_interval": "750ms",
	} {
		if err := m.Set(key, value); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}

	cfg, err := loadWith(NewFileBackend(path), &mockSecrets{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4200 || cfg.AI.TextModel != "gpt-4o" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.Files.MinioUseSSL || cfg.Worker.PollInterval != 750*time.Millisecond {
		t.Errorf("Files = %+v, Worker = %+v", cfg.Files, cfg.Worker)
	}

	if err := m.Unset("server.port"); err != nil {
		t.Fatalf("Unset: %v", err)
	}
	cfg, _ = loadWith(NewFileBackend(path), &mockSecrets{})
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port after unset = %d, want default", cfg.Server.Port)
	}
}

func TestSetSecretGoesToKeyring(t *testing.T) {
	m, path := newTestSetter(t)

	if err := m.Set("ai.api_key", "sk-test"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Secrets.Get(AccountAIKey)
	if err != nil || got != "sk-test" {
		t.Errorf("keyring value = %q, %v", got, err)
	}
	if v, ok, _ := NewFileBackend(path).GetString("ai.api_key"); ok {
		t.Errorf("secret written to config file: %q", v)
	}
	if err := m.Unset("ai.api_key"); err == nil {
		t.Error("expected error unsetting a secret")
	}
}

func TestSetRejectsBadInput(t *testing.T) {
	m, _ := newTestSetter(t)

	tests := []struct {
		key, value, want string
	}{
		{"nope", "1", "unknown config key"},
		{"server.port", "high", "invalid value for server.port"},
		{"worker.poll_interval", "5", "invalid value for worker.poll_interval"},
		{"files.minio_use_ssl", "maybe", "invalid value"},
	}
	for _, tt := range tests {
		err := m.Set(tt.key, tt.value)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Set(%q, %q) = %v, want %q", tt.key, tt.value, err, tt.want)
		}
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.AI.APIKey = "sk-1234567890"
	cfg.Server.Token = "short"

	got := map[string]KeyInfo{}
	for _, k := range ShowAll(cfg) {
		got[k.Key] = k
	}

	if len(got) != len(ValidKeys()) {
		t.Errorf("ShowAll returned %d keys, want %d", len(got), len(ValidKeys()))
	}
	if v := got["ai.api_key"].Value; v != "sk-1****" {
		t.Errorf("ai.api_key = %q", v)
	}
	if v := got["server.token"].Value; v != "********" {
		t.Errorf("server.token = %q", v)
	}
	if v := got["files.minio_secret_key"].Value; v != "(not set)" {
		t.Errorf("files.minio_secret_key = %q", v)
	}
	if k := got["server.port"]; k.Value != "4100" || k.EnvVar != "AIASSIST_SERVER_PORT" || k.Secret {
		t.Errorf("server.port = %+v", k)
	}
}

func TestEnsureAPIToken(t *testing.T) {
	s := &mockSecrets{}

	first, err := EnsureAPIToken(s)
	if err != nil {
		t.Fatalf("EnsureAPIToken: %v", err)
	}
	if len(first) != 36 {
		t.Errorf("token = %q, want a uuid", first)
	}
	second, err := EnsureAPIToken(s)
	if err != nil || second != first {
		t.Errorf("second call = %q, %v; want stored token %q", second, err, first)
	}

	broken := &mockSecrets{err: errors.New("locked")}
	if _, err := EnsureAPIToken(broken); err == nil {
		t.Error("expected error from a failing keyring")
	}
}
