package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/vantor/tradeboot/internal/deps"
)

// Config is the top-level TOML structure.
//
// Example:
//
//	non_interactive = false
//	env = ["PYTHONUNBUFFERED=1"]
//
//	[interpreter]
//	path = "python3"
//
//	[log]
//	dir = "logs"
//
//	[monitor]
//	script = "binance_take_profit.py"
//
//	[main]
//	script = "binance_main.py"
type Config struct {
	NonInteractive bool     `mapstructure:"non_interactive"`
	Debug          bool     `mapstructure:"debug"`
	Env            []string `mapstructure:"env"`
	EnvFiles       []string `mapstructure:"env_files"`
	UseOSEnv       bool     `mapstructure:"use_os_env"`

	Interpreter InterpreterConfig `mapstructure:"interpreter"`
	Deps        DepsConfig        `mapstructure:"deps"`
	Log         LogConfig         `mapstructure:"log"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Main        ProgramConfig     `mapstructure:"main"`
	History     HistoryConfig     `mapstructure:"history"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type InterpreterConfig struct {
	Path         string        `mapstructure:"path"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
}

type DepsConfig struct {
	Packages       []deps.Package `mapstructure:"packages"`
	InstallTimeout time.Duration  `mapstructure:"install_timeout"`
}

type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ProgramConfig describes one spawned Python program.
type ProgramConfig struct {
	Script  string   `mapstructure:"script"`
	Args    []string `mapstructure:"args"`
	WorkDir string   `mapstructure:"workdir"`
	Env     []string `mapstructure:"env"`
}

// MonitorConfig adds the detached-specific knobs to a program.
type MonitorConfig struct {
	ProgramConfig `mapstructure:",squash"`
	PIDFile       string        `mapstructure:"pidfile"`
	StopOnExit    bool          `mapstructure:"stop_on_exit"`
	StopWait      time.Duration `mapstructure:"stop_wait"`
}

type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Default returns the built-in configuration matching the original launcher's
// fixed behavior.
func Default() Config {
	return Config{
		UseOSEnv: true,
		Interpreter: InterpreterConfig{
			Path:         "python3",
			CheckTimeout: 10 * time.Second,
		},
		Deps: DepsConfig{
			Packages:       deps.Defaults(),
			InstallTimeout: 5 * time.Minute,
		},
		Log: LogConfig{Dir: "logs"},
		Monitor: MonitorConfig{
			ProgramConfig: ProgramConfig{Script: "binance_take_profit.py"},
			StopWait:      5 * time.Second,
		},
		Main: ProgramConfig{Script: "binance_main.py"},
	}
}

// Load reads a TOML config file over the defaults. An empty path yields the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks fields the launcher cannot default its way around.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Interpreter.Path) == "" {
		return fmt.Errorf("interpreter.path must not be empty")
	}
	if strings.TrimSpace(c.Main.Script) == "" {
		return fmt.Errorf("main.script must not be empty")
	}
	if strings.TrimSpace(c.Monitor.Script) == "" {
		return fmt.Errorf("monitor.script must not be empty")
	}
	if strings.TrimSpace(c.Log.Dir) == "" {
		return fmt.Errorf("log.dir must not be empty")
	}
	for i, p := range c.Deps.Packages {
		if strings.TrimSpace(p.Module) == "" {
			return fmt.Errorf("deps.packages[%d]: module must not be empty", i)
		}
		if strings.TrimSpace(p.Install) == "" {
			return fmt.Errorf("deps.packages[%d]: install must not be empty", i)
		}
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		return fmt.Errorf("metrics.listen must be set when metrics are enabled")
	}
	return nil
}

// MonitorPIDFile returns the configured monitor PID file, defaulting to
// <log.dir>/monitor.pid.
func (c *Config) MonitorPIDFile() string {
	if c.Monitor.PIDFile != "" {
		return c.Monitor.PIDFile
	}
	return filepath.Join(c.Log.Dir, "monitor.pid")
}

// GlobalEnv merges env_files contents and the top-level env list, files
// first so explicit entries win.
func (c *Config) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			if k != "" {
				m[k] = v
			}
		}
	}
	return m, nil
}
