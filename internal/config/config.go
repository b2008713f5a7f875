// Application configuration with TOML file support
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"image-crop-engine/internal/raster"
)

// Config holds every tunable of the crop engine and its host.
type Config struct {
	Log    LogConfig    `toml:"log"`
	Raster RasterConfig `toml:"raster"`
	Loader LoaderConfig `toml:"loader"`
	Save   SaveConfig   `toml:"save"`
	Debug  DebugConfig  `toml:"debug"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// RasterConfig selects where pixels live.
type RasterConfig struct {
	Backend raster.Backend `toml:"backend"`
}

// LoaderConfig controls source resolution and decoding.
type LoaderConfig struct {
	ContentRoot string   `toml:"content_root"`
	HTTPTimeout Duration `toml:"http_timeout"`
	MaxBytes    int64    `toml:"max_bytes"`
	AutoOrient  bool     `toml:"auto_orient"`
}

// SaveConfig controls persisting the cropped result.
type SaveConfig struct {
	CacheDir             string `toml:"cache_dir"`
	Quality              int    `toml:"quality"`
	PreserveTransparency bool   `toml:"preserve_transparency"`
}

// DebugConfig controls which debug modules are enabled
type DebugConfig struct {
	Memory      bool `toml:"memory"`       // track buffer allocations and releases
	VerifyReset bool `toml:"verify_reset"` // compare pixels after every reset
}

// Duration decodes TOML strings such as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Raster: RasterConfig{
			Backend: raster.BackendOpenCV,
		},
		Loader: LoaderConfig{
			HTTPTimeout: Duration{30 * time.Second},
			MaxBytes:    64 << 20,
			AutoOrient:  true,
		},
		Save: SaveConfig{
			CacheDir: filepath.Join(os.TempDir(), "image-crop-engine"),
			Quality:  100,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error

	switch c.Raster.Backend {
	case raster.BackendOpenCV, raster.BackendNative:
	default:
		errs = append(errs, fmt.Errorf("unknown raster backend: %q", c.Raster.Backend))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format: %q", c.Log.Format))
	}

	if c.Save.Quality < 1 || c.Save.Quality > 100 {
		errs = append(errs, fmt.Errorf("save quality must be in [1,100], got %d", c.Save.Quality))
	}
	if c.Loader.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("loader max_bytes must be positive"))
	}

	return errors.Join(errs...)
}
