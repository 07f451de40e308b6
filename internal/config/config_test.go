package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rashpile/scriptmate/pkg/script"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Shell.Runtime != RuntimeNative {
		t.Errorf("Shell.Runtime = %q, want %q", cfg.Shell.Runtime, RuntimeNative)
	}
	if cfg.Shell.Quoting != script.QuoteDouble {
		t.Errorf("Shell.Quoting = %q, want %q", cfg.Shell.Quoting, script.QuoteDouble)
	}
	if cfg.Defaults.Timeout != 10*time.Minute {
		t.Errorf("Defaults.Timeout = %v", cfg.Defaults.Timeout)
	}
	if cfg.Defaults.MaxOutput != 5000 {
		t.Errorf("Defaults.MaxOutput = %d", cfg.Defaults.MaxOutput)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.BaseDirectory != "" {
		t.Errorf("BaseDirectory = %q, want empty", cfg.BaseDirectory)
	}
}

func TestLoadParsesAndExpandsEnv(t *testing.T) {
	t.Setenv("SCRIPTMATE_TEST_TOKEN", "secret")
	t.Setenv("SCRIPTMATE_TEST_DIR", "/srv/project")

	path := writeConfig(t, `
base_directory: ${SCRIPTMATE_TEST_DIR}
commands_path: /etc/scriptmate/commands.json
global_env:
  FOO: bar
shell:
  runtime: virtual
  quoting: shell
database:
  path: history.db
defaults:
  timeout: 30s
  argument_timeout: 2m
log:
  level: debug
  format: json
telegram:
  token: ${SCRIPTMATE_TEST_TOKEN}
  allowed_chat_ids: [1, 2]
  admin_chat_ids: [1]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseDirectory != "/srv/project" {
		t.Errorf("BaseDirectory = %q", cfg.BaseDirectory)
	}
	if cfg.Telegram.Token != "secret" {
		t.Errorf("Telegram.Token = %q", cfg.Telegram.Token)
	}
	if cfg.GlobalEnv["FOO"] != "bar" {
		t.Errorf("GlobalEnv = %v", cfg.GlobalEnv)
	}
	if cfg.Shell.Runtime != RuntimeVirtual || cfg.Shell.Quoting != script.QuoteShell {
		t.Errorf("Shell = %+v", cfg.Shell)
	}
	if want := filepath.Join(filepath.Dir(path), "history.db"); cfg.Database.Path != want {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, want)
	}
	if cfg.Defaults.Timeout != 30*time.Second || cfg.Defaults.ArgumentTimeout != 2*time.Minute {
		t.Errorf("Defaults = %+v", cfg.Defaults)
	}
	if len(cfg.Telegram.AdminChatIDs) != 1 {
		t.Errorf("AdminChatIDs = %v", cfg.Telegram.AdminChatIDs)
	}
	if err := cfg.ValidateBot(); err != nil {
		t.Errorf("ValidateBot() = %v", err)
	}
}

func TestLoadRejectsUnknownShellSettings(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "runtime", body: "shell:\n  runtime: zsh\n"},
		{name: "quoting", body: "shell:\n  quoting: single\n"},
		{name: "syntax", body: "shell: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestExpandEnvVarsLeavesUnknown(t *testing.T) {
	t.Setenv("SCRIPTMATE_KNOWN", "yes")
	got := expandEnvVars("$SCRIPTMATE_KNOWN ${SCRIPTMATE_UNKNOWN_VAR}")
	if want := "yes ${SCRIPTMATE_UNKNOWN_VAR}"; got != want {
		t.Errorf("expandEnvVars() = %q, want %q", got, want)
	}
}

func TestValidateBot(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "ok", cfg: Config{Telegram: TelegramConfig{Token: "t", AllowedChatIDs: []int64{1}}}},
		{name: "no token", cfg: Config{Telegram: TelegramConfig{AllowedChatIDs: []int64{1}}}, wantErr: true},
		{name: "no chats", cfg: Config{Telegram: TelegramConfig{Token: "t"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.ValidateBot(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateBot() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveCommandsPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	def, err := DefaultCommandsPath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(def) != CommandsFileName {
		t.Errorf("DefaultCommandsPath() = %q", def)
	}

	abs := filepath.Join(t.TempDir(), "mine.json")

	tests := []struct {
		name     string
		override string
		want     string
		wantWarn bool
	}{
		{name: "unset", override: "", want: def},
		{name: "absolute", override: abs, want: abs},
		{name: "relative", override: "mine.json", want: def, wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{CommandsPath: tt.override}
			got, err := cfg.ResolveCommandsPath()
			if got != tt.want {
				t.Errorf("ResolveCommandsPath() = %q, want %q", got, tt.want)
			}
			if tt.wantWarn != errors.Is(err, ErrRelativeCommandsPath) {
				t.Errorf("ResolveCommandsPath() error = %v, wantWarn %v", err, tt.wantWarn)
			}
		})
	}
}
