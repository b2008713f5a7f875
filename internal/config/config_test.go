package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-crop-engine/internal/raster"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crop.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"
format = "text"

[raster]
backend = "native"

[loader]
http_timeout = "5s"
content_root = "/srv/content"

[save]
quality = 90

[debug]
memory = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, raster.BackendNative, cfg.Raster.Backend)
	assert.Equal(t, 5*time.Second, cfg.Loader.HTTPTimeout.Duration)
	assert.Equal(t, "/srv/content", cfg.Loader.ContentRoot)
	assert.Equal(t, 90, cfg.Save.Quality)
	assert.True(t, cfg.Debug.Memory)
	// untouched keys keep their defaults
	assert.True(t, cfg.Loader.AutoOrient)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[raster]\nbackend = \"native\"\nthreads = 4\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Raster.Backend = "cuda"
	cfg.Save.Quality = 0
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cuda")
	assert.Contains(t, err.Error(), "quality")
	assert.Contains(t, err.Error(), "xml")
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfig(t, "[loader]\nhttp_timeout = \"soon\"\n")

	_, err := Load(path)
	assert.Error(t, err)
}
