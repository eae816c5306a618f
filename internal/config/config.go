// Package config loads esmdevd's resolved configuration: a config file
// (esmdev.config.{yaml,json}) read through viper, overlaid by ESMDEV_*
// environment variables, plus the project's .env file family. Grounded
// on tools/please_js/common/env.go's priority loading, generalized from
// a single env-file loader to a full viper-backed config layer the way
// a dev server needs (port, root, mode, optimizeDeps, defines).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is esmdevd's resolved configuration.
type Config struct {
	Root       string `mapstructure:"root"`
	ServeDir   string `mapstructure:"serveDir"`
	Port       int    `mapstructure:"port"`
	Mode       string `mapstructure:"mode"`
	EntryHTML  string `mapstructure:"entry"`
	EnvPrefix  string `mapstructure:"envPrefix"`
	EnvFile    bool   `mapstructure:"envFile"`
	Lockfile   string `mapstructure:"lockfile"`
	CacheDir   string `mapstructure:"cacheDir"`
	TSConfig   string `mapstructure:"tsconfig"`

	OptimizeDeps struct {
		Entries []string `mapstructure:"entries"`
		Include []string `mapstructure:"include"`
		Exclude []string `mapstructure:"exclude"`
		Force   bool     `mapstructure:"force"`
	} `mapstructure:"optimizeDeps"`

	Define map[string]string `mapstructure:"define"`

	// ConfigFile is the path viper actually loaded (for the HMR
	// propagator's pre-filter gate 1), empty if none was found.
	ConfigFile string `mapstructure:"-"`
}

// Load reads esmdev.config.{yaml,yml,json,toml} from root (if present),
// overlays ESMDEV_* environment variables, and applies defaults.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("esmdev.config")
	v.AddConfigPath(root)
	v.SetEnvPrefix("ESMDEV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("root", root)
	v.SetDefault("serveDir", root)
	v.SetDefault("port", 5173)
	v.SetDefault("mode", "development")
	v.SetDefault("entry", "index.html")
	v.SetDefault("envPrefix", "ESMDEV_PUBLIC_")
	v.SetDefault("envFile", true)
	v.SetDefault("lockfile", filepath.Join(root, "package-lock.json"))
	v.SetDefault("cacheDir", filepath.Join(root, "node_modules", ".esmdev"))

	configFile := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		configFile = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.ConfigFile = configFile

	if cfg.Define == nil {
		cfg.Define = map[string]string{}
	}
	return &cfg, nil
}
