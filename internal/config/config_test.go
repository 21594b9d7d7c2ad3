package config

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	c := qt.New(t)
	t.Setenv("PYRAMID_COVERAGE", "dem")

	cfg, err := Load(NewViper())
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Coverage, qt.Equals, "dem")
	c.Assert(cfg.Dialect, qt.Equals, "sqlite")
	c.Assert(cfg.Strategy, qt.Equals, "streaming")
	c.Assert(cfg.DecodeTimeout, qt.Equals, time.Hour)
	c.Assert(cfg.CORSAllowedOrigins, qt.DeepEquals, []string{"*"})
	c.Assert(cfg.StoreTables(), qt.DeepEquals, store.DefaultTables())
}

func TestLoadFromEnvironment(t *testing.T) {
	c := qt.New(t)
	t.Setenv("PYRAMID_COVERAGE", "bathymetry")
	t.Setenv("PYRAMID_DIALECT", "PostGIS")
	t.Setenv("PYRAMID_STRATEGY", "bulk")
	t.Setenv("PYRAMID_WORKERS", "3")
	t.Setenv("PYRAMID_DECODE_TIMEOUT", "90s")
	t.Setenv("PYRAMID_TABLES_MASTER_TABLE", "public.pyramids")
	t.Setenv("PYRAMID_TABLES_RASTER_COLUMN", "tile")
	t.Setenv("PYRAMID_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(NewViper())
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Dialect, qt.Equals, "postgis")
	c.Assert(cfg.Strategy, qt.Equals, "bulk")
	c.Assert(cfg.Workers, qt.Equals, 3)
	c.Assert(cfg.DecodeTimeout, qt.Equals, 90*time.Second)
	c.Assert(cfg.Tables.Master, qt.Equals, "public.pyramids")
	c.Assert(cfg.StoreTables().RasterColumn, qt.Equals, "tile")
	c.Assert(cfg.CORSAllowedOrigins, qt.DeepEquals, []string{"https://a.example", "https://b.example"})

	opts := cfg.PyramidOptions(domain.CRS{Code: "EPSG:4326", SRID: 4326})
	c.Assert(opts.Coverage, qt.Equals, "bathymetry")
	c.Assert(opts.Workers, qt.Equals, 3)
	c.Assert(opts.Tables.Master, qt.Equals, "public.pyramids")
}

func TestValidate(t *testing.T) {
	base := Default()
	base.Coverage = "dem"

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing coverage", func(c *Config) { c.Coverage = "" }},
		{"empty column", func(c *Config) { c.Tables.LevelColumn = "" }},
		{"unknown strategy", func(c *Config) { c.Strategy = "mosaic" }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"zero timeout", func(c *Config) { c.DecodeTimeout = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "LOUD" }},
	}
	for _, tt := range tests {
		cfg := base
		tt.modify(&cfg)
		if err := cfg.Validate(); !errors.Is(err, errors.NotValid) {
			t.Errorf("%s: expected not valid error, got %v", tt.name, err)
		}
	}
	if err := base.Validate(); err != nil {
		t.Errorf("defaults with coverage should be valid: %v", err)
	}
}

func TestConfigureLogging(t *testing.T) {
	c := qt.New(t)
	defer func() { _ = loggo.ConfigureLoggers("<root>=WARNING") }()

	c.Assert(ConfigureLogging("debug"), qt.IsNil)
	c.Assert(loggo.GetLogger("pyramid.streaming").IsDebugEnabled(), qt.IsTrue)
	c.Assert(ConfigureLogging("nonsense"), qt.Not(qt.IsNil))
}
