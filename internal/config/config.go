// Package config loads and resolves unitd's manager-level settings:
// where unit files live, where runtime sockets go, and the pool/timeout
// knobs the Supervisor and Starter need. Grounded on the teacher's
// viper-backed `cmd/root.go` (config file + flag + env precedence via a
// single `viper.Viper`) and `internal/config/config.go`'s user-mode path
// derivation (root vs. non-root defaults); generalized from the
// teacher's git-sync/quadlet paths to unitd's unit-directory/socket-dir
// settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// getuid is overridable in tests to simulate root/non-root environments,
// matching the teacher's own `var getuid = os.Getuid` pattern.
var getuid = os.Getuid

// UserMode reports whether the manager should use non-root ($HOME-relative)
// defaults, following the teacher's `IsUserMode`.
func UserMode() bool {
	return getuid() != 0
}

// Settings holds every manager-level knob, resolved once at startup and
// then treated as immutable for the life of the process (spec.md carries
// no provision for reloading the manager's own configuration, only its
// units).
type Settings struct {
	// UnitDir is where unit definition files are read from.
	UnitDir string `mapstructure:"unit_dir"`

	// RuntimeDir holds the notification sockets and the control socket,
	// under $RuntimeDir/notify and $RuntimeDir/control.socket.
	RuntimeDir string `mapstructure:"runtime_dir"`

	// StartWorkers bounds how many units the Supervisor starts concurrently;
	// zero means runtime.NumCPU().
	StartWorkers int `mapstructure:"start_workers"`

	// DefaultStartTimeout and DefaultStopTimeout apply to units that don't
	// set their own (spec.md §4.6/§5).
	DefaultStartTimeout time.Duration `mapstructure:"default_start_timeout"`
	DefaultStopTimeout  time.Duration `mapstructure:"default_stop_timeout"`

	// GracePeriod is how long the Supervisor waits for a service's main
	// process to exit after SIGTERM or its stop commands before sending
	// SIGKILL (spec.md §5, default 10s); zero means the unit's stop timeout.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	Verbose bool `mapstructure:"verbose"`
}

// NotifySocketDir is where per-service notification datagram sockets live.
func (s Settings) NotifySocketDir() string {
	return filepath.Join(s.RuntimeDir, "notify")
}

// ControlSocketPath is the manager's control-socket listen address (spec.md §6).
func (s Settings) ControlSocketPath() string {
	return filepath.Join(s.RuntimeDir, "control.socket")
}

// Workers resolves StartWorkers to a usable pool size.
func (s Settings) Workers() int {
	if s.StartWorkers > 0 {
		return s.StartWorkers
	}
	return runtime.NumCPU()
}

func defaults() Settings {
	d := Settings{
		StartWorkers:        0,
		DefaultStartTimeout: 90 * time.Second,
		DefaultStopTimeout:  90 * time.Second,
		GracePeriod:         10 * time.Second,
	}
	if UserMode() {
		home, _ := os.UserHomeDir()
		d.UnitDir = filepath.Join(home, ".config/unitd/units")
		d.RuntimeDir = os.ExpandEnv("$XDG_RUNTIME_DIR/unitd")
		if d.RuntimeDir == "/unitd" { // XDG_RUNTIME_DIR unset
			d.RuntimeDir = filepath.Join(home, ".local/run/unitd")
		}
		return d
	}
	d.UnitDir = "/etc/unitd/units"
	d.RuntimeDir = "/run/unitd"
	return d
}

// Provider resolves Settings from a config file, environment variables
// (UNITD_ prefix) and flag overrides, in that precedence order — the
// same three-source model as the teacher's `cmd/root.go` PersistentPreRun,
// built on the same `spf13/viper` instance rather than hand-rolled
// override logic.
type Provider struct {
	v *viper.Viper
}

// NewProvider creates a Provider seeded with defaults for the current
// uid, optionally loading configFile if non-empty.
func NewProvider(configFile string) (*Provider, error) {
	v := viper.New()
	v.SetEnvPrefix("unitd")
	v.AutomaticEnv()

	d := defaults()
	v.SetDefault("unit_dir", d.UnitDir)
	v.SetDefault("runtime_dir", d.RuntimeDir)
	v.SetDefault("start_workers", d.StartWorkers)
	v.SetDefault("default_start_timeout", d.DefaultStartTimeout)
	v.SetDefault("default_stop_timeout", d.DefaultStopTimeout)
	v.SetDefault("grace_period", d.GracePeriod)
	v.SetDefault("verbose", false)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("unitd")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/unitd")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config/unitd"))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	return &Provider{v: v}, nil
}

// Settings materializes the resolved Settings struct.
func (p *Provider) Settings() (Settings, error) {
	var s Settings
	if err := p.v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return s, nil
}

// ConfigFileUsed reports which file (if any) was loaded, for the
// manager's verbose-mode startup log line (teacher `cmd/root.go` prints
// the same thing via `viper.GetViper().ConfigFileUsed()`).
func (p *Provider) ConfigFileUsed() string {
	return p.v.ConfigFileUsed()
}

// SetOverride applies a flag-sourced override, taking precedence over
// both the config file and its defaults (teacher's
// `--quadlet-dir`/`--repository-dir` flag-override pattern in `cmd/root.go`).
func (p *Provider) SetOverride(key string, value any) {
	p.v.Set(key, value)
}
