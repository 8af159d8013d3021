package manager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hoppxi/glint/internal/backlight"
)

type EwwConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Variable      string        `mapstructure:"variable" yaml:"variable"`
	OSDVariable   string        `mapstructure:"osd_variable" yaml:"osd_variable"`
	OSDTimeout    time.Duration `mapstructure:"osd_timeout" yaml:"osd_timeout"`
	FaultVariable string        `mapstructure:"fault_variable" yaml:"fault_variable"`
}

type Config struct {
	Device        string        `mapstructure:"device" yaml:"device"`
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	SysfsRoot     string        `mapstructure:"sysfs_root" yaml:"sysfs_root"`
	RuntimeDir    string        `mapstructure:"runtime_dir" yaml:"runtime_dir"`
	Step          int           `mapstructure:"step" yaml:"step"`
	PageStep      int           `mapstructure:"page_step" yaml:"page_step"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
	LogLevel      string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile       string        `mapstructure:"log_file" yaml:"log_file"`
	SyncExternal  bool          `mapstructure:"sync_external" yaml:"sync_external"`
	NotifyFaults  bool          `mapstructure:"notify_faults" yaml:"notify_faults"`
	Eww           EwwConfig     `mapstructure:"eww" yaml:"eww"`
}

func Defaults() Config {
	return Config{
		Backend:       string(backlight.BackendAuto),
		SysfsRoot:     backlight.DefaultRoot,
		Step:          5,
		PageStep:      20,
		ShutdownGrace: 2 * time.Second,
		LogLevel:      "info",
		SyncExternal:  true,
		Eww: EwwConfig{
			Variable:      "BRIGHTNESS_LEVEL",
			OSDVariable:   "OSD_BRIGHTNESS",
			OSDTimeout:    2 * time.Second,
			FaultVariable: "BRIGHTNESS_FAULT",
		},
	}
}

// Validate rejects settings the leader cannot run with.
func (c Config) Validate() error {
	if _, err := backlight.ParseBackend(c.Backend); err != nil {
		return err
	}
	if c.Step < 1 || c.Step > 100 {
		return fmt.Errorf("step %d must be in 1-100", c.Step)
	}
	if c.PageStep < 1 || c.PageStep > 100 {
		return fmt.Errorf("page_step %d must be in 1-100", c.PageStep)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("shutdown_grace must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// DefaultConfigPath is $XDG_CONFIG_HOME/glint/glint.yaml.
func DefaultConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".config", "glint", "glint.yaml")
	}
	return filepath.Join(configDir, "glint", "glint.yaml")
}

type ConfigManager struct {
	v    *viper.Viper
	path string
}

// NewConfig prepares a config rooted at path (the default location
// when empty). Environment variables prefixed GLINT_ override the file.
func NewConfig(path string) *ConfigManager {
	if path == "" {
		path = DefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("glint")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("device", d.Device)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("sysfs_root", d.SysfsRoot)
	v.SetDefault("runtime_dir", d.RuntimeDir)
	v.SetDefault("step", d.Step)
	v.SetDefault("page_step", d.PageStep)
	v.SetDefault("shutdown_grace", d.ShutdownGrace)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("sync_external", d.SyncExternal)
	v.SetDefault("notify_faults", d.NotifyFaults)
	v.SetDefault("eww.enabled", d.Eww.Enabled)
	v.SetDefault("eww.variable", d.Eww.Variable)
	v.SetDefault("eww.osd_variable", d.Eww.OSDVariable)
	v.SetDefault("eww.osd_timeout", d.Eww.OSDTimeout)
	v.SetDefault("eww.fault_variable", d.Eww.FaultVariable)

	return &ConfigManager{v: v, path: path}
}

func (c *ConfigManager) Path() string { return c.path }

// BindFlags lets command line flags override file and environment.
// Flag names use dashes; config keys use underscores.
func (c *ConfigManager) BindFlags(flags *pflag.FlagSet) error {
	for _, name := range []string{"device", "backend", "runtime-dir", "log-level", "log-file"} {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := c.v.BindPFlag(strings.ReplaceAll(name, "-", "_"), f); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the file if it exists. A missing file leaves defaults.
func (c *ConfigManager) Load() (Config, error) {
	if _, err := os.Stat(c.path); err == nil {
		if err := c.v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return c.decode()
}

func (c *ConfigManager) decode() (Config, error) {
	var cfg Config
	if err := c.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", c.path, err)
	}
	return cfg, nil
}

// Watch calls onChange with the new config each time the file changes
// and still validates. Invalid edits are reported through onError and
// otherwise ignored.
func (c *ConfigManager) Watch(onChange func(Config), onError func(error)) {
	if _, err := os.Stat(c.path); err != nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := c.decode()
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg)
	})
	c.v.WatchConfig()
}

// WriteDefault writes the default config to path atomically. An
// existing file is kept unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	body, err := yaml.Marshal(Defaults())
	if err != nil {
		return err
	}
	header := "# glint configuration\n" +
		"# backend: auto, sysfs or logind\n" +
		"# step/page_step, eww.* reload while glint runs\n"
	return renameio.WriteFile(path, append([]byte(header), body...), 0o644)
}
