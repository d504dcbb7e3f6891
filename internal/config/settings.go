package config

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// StateDirName is the hub's workspace state directory.
	StateDirName = ".modhub"
	// SettingsFileName lives inside the state dir.
	SettingsFileName = "settings.yaml"

	defaultSelfTestTimeout = 5 * time.Second
)

// Settings are the hub-level knobs read from .modhub/settings.yaml with
// MODHUB_* environment overrides. The settings file is optional; defaults
// plus environment are enough to run.
type Settings struct {
	ModulesRoot string           `mapstructure:"modules_root" yaml:"modules_root"`
	ModuleList  string           `mapstructure:"module_list" yaml:"module_list"`
	SelfTest    SelfTestSettings `mapstructure:"selftest" yaml:"selftest"`
	History     HistorySettings  `mapstructure:"history" yaml:"history"`
	Logging     LoggingSettings  `mapstructure:"logging" yaml:"logging"`
}

// SelfTestSettings bounds module self-test execution.
type SelfTestSettings struct {
	// Timeout is a Go duration string ("5s", "250ms").
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
}

// TimeoutDuration parses the configured timeout, falling back to the
// default when unset or malformed. Self-tests must always run bounded.
func (s SelfTestSettings) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return defaultSelfTestTimeout
	}
	return d
}

// HistorySettings controls the optional per-run summary log in sqlite.
type HistorySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoggingSettings controls the zap file sink.
type LoggingSettings struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultSettings returns the built-in configuration. Self-repair writes
// exactly this (as YAML) when scaffolding a missing settings file.
func DefaultSettings() Settings {
	return Settings{
		ModulesRoot: "modules",
		ModuleList:  "modules.json",
		SelfTest:    SelfTestSettings{Timeout: "5s"},
		History: HistorySettings{
			Enabled: false,
			Path:    filepath.Join(StateDirName, "data", "history.db"),
		},
		Logging: LoggingSettings{
			File:  filepath.Join(StateDirName, "logs", "modhub.log"),
			Level: "info",
		},
	}
}

// DefaultSettingsYAML renders the defaults for the settings scaffold.
func DefaultSettingsYAML() ([]byte, error) {
	out, err := yaml.Marshal(DefaultSettings())
	if err != nil {
		return nil, errors.Wrap(err, "marshal default settings")
	}
	return out, nil
}

// LoadSettings reads settings for the workspace rooted at root. Resolution
// order: defaults, then the yaml file if present, then MODHUB_* environment
// variables (dots become underscores: selftest.timeout ->
// MODHUB_SELFTEST_TIMEOUT).
func LoadSettings(root string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(root, StateDirName, SettingsFileName))
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MODHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Absent settings file is fine; anything else (bad YAML,
		// permission denied) the operator needs to hear about.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "read settings for %s", root)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrapf(err, "decode settings for %s", root)
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("modules_root", d.ModulesRoot)
	v.SetDefault("module_list", d.ModuleList)
	v.SetDefault("selftest.timeout", d.SelfTest.Timeout)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.level", d.Logging.Level)
}

// ResolvePath joins a settings-relative path onto the workspace root,
// leaving absolute paths alone.
func ResolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
