// Package config loads the docsync CLI's configuration: a TOML file under
// ~/.docsync, layered with DOCSYNC_-prefixed environment overrides, the same
// shape as the rest of this lineage's configuration loading.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/teranos/docsync/errors"
)

// Config is the on-disk/environment configuration for the docsync daemon.
type Config struct {
	Endpoint     string `mapstructure:"endpoint"`
	DatabasePath string `mapstructure:"database_path"`
	ControlSock  string `mapstructure:"control_socket"`
	JWTSecret    string `mapstructure:"jwt_secret"`
	UserID       string `mapstructure:"user_id"`
	JSONLogs     bool   `mapstructure:"json_logs"`
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docsync"
	}
	return filepath.Join(home, ".docsync")
}

func setConfigDefaults(v *viper.Viper) {
	dir := defaultConfigDir()
	v.SetDefault("endpoint", "localhost:8443")
	v.SetDefault("database_path", filepath.Join(dir, "docsync.db"))
	v.SetDefault("control_socket", filepath.Join(dir, "control.sock"))
	v.SetDefault("user_id", "default")
	v.SetDefault("json_logs", false)
}

// Load reads configPath (default ~/.docsync/config.toml) if present, applies
// defaults for anything missing, and lets DOCSYNC_* environment variables
// override both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCSYNC")
	v.AutomaticEnv()
	setConfigDefaults(v)

	if configPath == "" {
		configPath = filepath.Join(defaultConfigDir(), "config.toml")
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrapf(err, "read config %s", configPath)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}
