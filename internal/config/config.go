// Package config handles application configuration loading from YAML files.
// Supports environment variable expansion in string values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rashpile/scriptmate/pkg/script"
)

// CommandsFileName is the name of the definitions document in the default location.
const CommandsFileName = "scriptmate-commands.json"

// BaseDirectoryEnv is exported to every executed command.
const BaseDirectoryEnv = "SCRIPTMATE_BASE_DIRECTORY"

// Config holds all application configuration.
type Config struct {
	BaseDirectory string            `yaml:"base_directory"`
	CommandsPath  string            `yaml:"commands_path"`
	GlobalEnv     map[string]string `yaml:"global_env"`
	Shell         ShellConfig       `yaml:"shell"`
	Database      DatabaseConfig    `yaml:"database"`
	Defaults      DefaultsConfig    `yaml:"defaults"`
	Log           LogConfig         `yaml:"log"`
	Telegram      TelegramConfig    `yaml:"telegram"`
}

// ShellConfig selects how rendered commands are quoted and run.
type ShellConfig struct {
	Runtime string         `yaml:"runtime"` // native or virtual
	Quoting script.Quoting `yaml:"quoting"` // double or shell
}

// Runtimes accepted in shell.runtime.
const (
	RuntimeNative  = "native"
	RuntimeVirtual = "virtual"
)

// DatabaseConfig holds the execution history database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DefaultsConfig holds default values for command execution.
type DefaultsConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxOutput       int           `yaml:"max_output"`
	ArgumentTimeout time.Duration `yaml:"argument_timeout"`
}

// LogConfig configures the slog backend.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json or logfmt
	File   string `yaml:"file"`   // empty logs to stderr
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token          string  `yaml:"token"`
	AllowedChatIDs []int64 `yaml:"allowed_chat_ids"`
	AdminChatIDs   []int64 `yaml:"admin_chat_ids"` // may add, edit and delete definitions
}

// Load reads configuration from the specified YAML file path.
// A missing file yields the defaults so the CLI works without one.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	if cfg.Database.Path != "" {
		cfg.Database.Path = ExpandPath(path, cfg.Database.Path)
	}
	if cfg.Log.File != "" {
		cfg.Log.File = ExpandPath(path, cfg.Log.File)
	}

	return &cfg, nil
}

// setDefaults applies default values for unset fields.
func (c *Config) setDefaults() error {
	if c.Shell.Runtime == "" {
		c.Shell.Runtime = RuntimeNative
	}
	if c.Shell.Runtime != RuntimeNative && c.Shell.Runtime != RuntimeVirtual {
		return fmt.Errorf("shell.runtime must be %q or %q, got %q", RuntimeNative, RuntimeVirtual, c.Shell.Runtime)
	}

	if c.Shell.Quoting == "" {
		c.Shell.Quoting = script.QuoteDouble
	}
	if c.Shell.Quoting != script.QuoteDouble && c.Shell.Quoting != script.QuoteShell {
		return fmt.Errorf("shell.quoting must be %q or %q, got %q", script.QuoteDouble, script.QuoteShell, c.Shell.Quoting)
	}

	if c.Database.Path == "" {
		c.Database.Path = "./scriptmate.db"
	}

	if c.Defaults.Timeout == 0 {
		c.Defaults.Timeout = 10 * time.Minute
	}

	if c.Defaults.MaxOutput == 0 {
		c.Defaults.MaxOutput = 5000
	}

	if c.Defaults.ArgumentTimeout == 0 {
		c.Defaults.ArgumentTimeout = 10 * time.Minute
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	return nil
}

// ValidateBot checks the settings only the Telegram host needs.
func (c *Config) ValidateBot() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}

	if len(c.Telegram.AllowedChatIDs) == 0 {
		return fmt.Errorf("telegram.allowed_chat_ids must have at least one entry")
	}

	return nil
}

// ErrRelativeCommandsPath reports a commands_path override that is not absolute.
var ErrRelativeCommandsPath = errors.New("commands_path must be absolute")

// ResolveCommandsPath returns where the definitions document lives.
// An absolute commands_path wins. A relative one is rejected: the default
// location is returned together with ErrRelativeCommandsPath as a warning.
func (c *Config) ResolveCommandsPath() (string, error) {
	if c.CommandsPath != "" && filepath.IsAbs(c.CommandsPath) {
		return c.CommandsPath, nil
	}

	def, err := DefaultCommandsPath()
	if err != nil {
		return "", err
	}

	if c.CommandsPath != "" {
		return def, fmt.Errorf("%w: %q, using %s", ErrRelativeCommandsPath, c.CommandsPath, def)
	}
	return def, nil
}

// DefaultCommandsPath is the per-user location of the definitions document.
func DefaultCommandsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, "scriptmate", CommandsFileName), nil
}

// ExpandPath resolves a path relative to the config file directory.
func ExpandPath(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(base), path)
}

// envVarPattern matches ${VAR} or $VAR patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if match[1] == '{' {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}
