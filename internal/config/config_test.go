package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bryan-buckman/feverd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaughan0/go-ini"
)

func parse(t *testing.T, text string) (config.Config, error) {
	t.Helper()
	file, err := ini.Load(strings.NewReader(text))
	require.NoError(t, err)
	return config.Parse(file)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	conf, err := parse(t, "")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), conf)
	assert.Equal(t, "127.0.0.1:8080", conf.ListenAddress())
	assert.Equal(t, "feverd.db", conf.Database.DSN())
}

func TestParseFull(t *testing.T) {
	conf, err := parse(t, `
[server]
address = 0.0.0.0
port = 9000

[database]
driver = postgres
url = postgres://feverd@localhost/feverd

[log]
level = debug

[fever]
enabled = false
favicon_dir = /var/lib/feverd/icons
salt = pepper

[poller]
enabled = false
`)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", conf.ListenAddress())
	assert.Equal(t, "postgres", conf.Database.Driver)
	assert.Equal(t, "postgres://feverd@localhost/feverd", conf.Database.DSN())
	assert.Equal(t, "debug", conf.LogLevel)
	assert.False(t, conf.Fever.Enabled)
	assert.Equal(t, "/var/lib/feverd/icons", conf.Fever.FaviconDir)
	assert.Equal(t, "pepper", conf.Fever.Salt)
	assert.False(t, conf.Poller.Enabled)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unknown driver", "[database]\ndriver = mysql\n"},
		{"postgres without url", "[database]\ndriver = postgres\n"},
		{"bad bool", "[fever]\nenabled = maybe\n"},
		{"bad port", "[server]\nport = eighty\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.text)
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	conf, err := config.Load(filepath.Join(dir, "missing.conf"), true)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), conf)

	_, err = config.Load(filepath.Join(dir, "missing.conf"), false)
	assert.Error(t, err)

	path := filepath.Join(dir, "feverd.conf")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = warn\n"), 0o644))

	conf, err = config.Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "warn", conf.LogLevel)
}
