// Package config loads feverd's INI configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"

	"github.com/vaughan0/go-ini"
)

// Config is the complete runtime configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	LogLevel string
	Fever    FeverConfig
	Poller   PollerConfig
}

type ServerConfig struct {
	Address string
	Port    string
}

type DatabaseConfig struct {
	Driver string // sqlite or postgres
	Path   string
	URL    string
}

type FeverConfig struct {
	Enabled    bool
	FaviconDir string
	Salt       string
}

type PollerConfig struct {
	Enabled bool
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server:   ServerConfig{Address: "127.0.0.1", Port: "8080"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "feverd.db"},
		LogLevel: "info",
		Fever:    FeverConfig{Enabled: true, FaviconDir: "favicons"},
		Poller:   PollerConfig{Enabled: true},
	}
}

// ListenAddress returns host:port for the HTTP server.
func (c Config) ListenAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Address, c.Server.Port)
}

// DSN returns the data source for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// Load reads the file at path. A missing file yields Default when
// optional is set.
func Load(path string, optional bool) (Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := ini.LoadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("failed to load config file: %w", err)
	}

	return Parse(file)
}

// Parse builds a Config from file, falling back to defaults for every
// missing key.
func Parse(file ini.File) (Config, error) {
	conf := Default()

	if v, ok := file.Get("server", "address"); ok {
		conf.Server.Address = v
	}
	if v, ok := file.Get("server", "port"); ok {
		if _, err := strconv.ParseUint(v, 10, 16); err != nil {
			return Config{}, fmt.Errorf("bad server.port %q: %w", v, err)
		}
		conf.Server.Port = v
	}

	if v, ok := file.Get("database", "driver"); ok {
		conf.Database.Driver = v
	}
	if v, ok := file.Get("database", "path"); ok {
		conf.Database.Path = v
	}
	if v, ok := file.Get("database", "url"); ok {
		conf.Database.URL = v
	}
	switch conf.Database.Driver {
	case "sqlite":
		if conf.Database.Path == "" {
			return Config{}, errors.New("config must contain database.path for sqlite")
		}
	case "postgres":
		if conf.Database.URL == "" {
			return Config{}, errors.New("config must contain database.url for postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown database.driver %q", conf.Database.Driver)
	}

	if v, ok := file.Get("log", "level"); ok {
		conf.LogLevel = v
	}

	var err error
	if conf.Fever.Enabled, err = getBool(file, "fever", "enabled", conf.Fever.Enabled); err != nil {
		return Config{}, err
	}
	if v, ok := file.Get("fever", "favicon_dir"); ok {
		conf.Fever.FaviconDir = v
	}
	if v, ok := file.Get("fever", "salt"); ok {
		conf.Fever.Salt = v
	}

	if conf.Poller.Enabled, err = getBool(file, "poller", "enabled", conf.Poller.Enabled); err != nil {
		return Config{}, err
	}

	return conf, nil
}

func getBool(file ini.File, section, key string, def bool) (bool, error) {
	v, ok := file.Get(section, key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("bad %s.%s %q: %w", section, key, v, err)
	}
	return b, nil
}

