// Package config loads the service configuration from the environment.
//
// Values come from flags (when bound), PYRAMID_* environment variables and
// the optional .env and .env.local files, in that order of precedence.
// Nested keys map to environment variables with dots and dashes replaced
// by underscores: tables.master-table is PYRAMID_TABLES_MASTER_TABLE.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/spf13/viper"

	"go.ngs.io/raster-pyramid/internal/adapter/store"
	"go.ngs.io/raster-pyramid/internal/domain"
	"go.ngs.io/raster-pyramid/internal/pyramid"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "pyramid"

// Tables names the master table and the columns shared by tile tables.
type Tables struct {
	Master          string
	CoverageColumn  string
	LevelColumn     string
	TileTableColumn string
	MinXColumn      string
	MinYColumn      string
	MaxXColumn      string
	MaxYColumn      string
	ResXColumn      string
	ResYColumn      string
	SRIDColumn      string
	StorageColumn   string
	RasterColumn    string
	PathColumn      string
}

// Config is the complete service configuration.
type Config struct {
	Tables             Tables
	Coverage           string
	CRSCode            string
	Dialect            string
	DSN                string
	Strategy           string
	Workers            int // 0 means one per CPU.
	DecodeTimeout      time.Duration
	LogLevel           string
	Port               string
	CORSAllowedOrigins []string
}

// Default returns the built-in defaults.
func Default() Config {
	t := store.DefaultTables()
	return Config{
		Tables: Tables{
			Master:          t.Master,
			CoverageColumn:  t.CoverageColumn,
			LevelColumn:     t.LevelColumn,
			TileTableColumn: t.TileTableColumn,
			MinXColumn:      t.MinXColumn,
			MinYColumn:      t.MinYColumn,
			MaxXColumn:      t.MaxXColumn,
			MaxYColumn:      t.MaxYColumn,
			ResXColumn:      t.ResXColumn,
			ResYColumn:      t.ResYColumn,
			SRIDColumn:      t.SRIDColumn,
			StorageColumn:   t.StorageColumn,
			RasterColumn:    t.RasterColumn,
			PathColumn:      t.PathColumn,
		},
		CRSCode:            "EPSG:4326",
		Dialect:            "sqlite",
		DSN:                "pyramid.db",
		Strategy:           pyramid.StrategyStreaming,
		DecodeTimeout:      pyramid.DefaultDecodeTimeout,
		LogLevel:           "INFO",
		Port:               "8080",
		CORSAllowedOrigins: []string{"*"},
	}
}

// tableKeys maps configuration keys to Tables fields.
func tableKeys(t *Tables) map[string]*string {
	return map[string]*string{
		"tables.master-table":      &t.Master,
		"tables.coverage-column":   &t.CoverageColumn,
		"tables.level-column":      &t.LevelColumn,
		"tables.tile-table-column": &t.TileTableColumn,
		"tables.min-x-column":      &t.MinXColumn,
		"tables.min-y-column":      &t.MinYColumn,
		"tables.max-x-column":      &t.MaxXColumn,
		"tables.max-y-column":      &t.MaxYColumn,
		"tables.res-x-column":      &t.ResXColumn,
		"tables.res-y-column":      &t.ResYColumn,
		"tables.srid-column":       &t.SRIDColumn,
		"tables.storage-column":    &t.StorageColumn,
		"tables.raster-column":     &t.RasterColumn,
		"tables.path-column":       &t.PathColumn,
	}
}

// LoadDotEnv loads .env and .env.local when present. Variables already
// set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// NewViper returns a viper instance reading PYRAMID_* variables, with
// every key defaulted.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	for key, ptr := range tableKeys(&d.Tables) {
		v.SetDefault(key, *ptr)
	}
	v.SetDefault("coverage", d.Coverage)
	v.SetDefault("crs", d.CRSCode)
	v.SetDefault("dialect", d.Dialect)
	v.SetDefault("dsn", d.DSN)
	v.SetDefault("strategy", d.Strategy)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("decode-timeout", d.DecodeTimeout)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("port", d.Port)
	v.SetDefault("cors-allowed-origins", strings.Join(d.CORSAllowedOrigins, ","))
	return v
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	for key, ptr := range tableKeys(&c.Tables) {
		*ptr = strings.TrimSpace(v.GetString(key))
	}
	c.Coverage = strings.TrimSpace(v.GetString("coverage"))
	c.CRSCode = strings.TrimSpace(v.GetString("crs"))
	c.Dialect = strings.ToLower(strings.TrimSpace(v.GetString("dialect")))
	c.DSN = v.GetString("dsn")
	c.Strategy = strings.ToLower(strings.TrimSpace(v.GetString("strategy")))
	c.Workers = v.GetInt("workers")
	c.DecodeTimeout = v.GetDuration("decode-timeout")
	c.LogLevel = v.GetString("log-level")
	c.Port = v.GetString("port")
	c.CORSAllowedOrigins = splitList(v.GetString("cors-allowed-origins"))

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration for missing or inconsistent values.
func (c Config) Validate() error {
	if c.Coverage == "" {
		return errors.NotValidf("empty coverage (set %s_COVERAGE)", strings.ToUpper(EnvPrefix))
	}
	for key, ptr := range tableKeys(&c.Tables) {
		if *ptr == "" {
			return errors.NotValidf("empty %s", key)
		}
	}
	switch c.Strategy {
	case pyramid.StrategyStreaming, pyramid.StrategyBulk:
	default:
		return errors.NotValidf("strategy %q", c.Strategy)
	}
	if c.Dialect == "" {
		return errors.NotValidf("empty dialect")
	}
	if c.Workers < 0 {
		return errors.NotValidf("negative worker count %d", c.Workers)
	}
	if c.DecodeTimeout <= 0 {
		return errors.NotValidf("decode timeout %v", c.DecodeTimeout)
	}
	if _, ok := loggo.ParseLevel(c.LogLevel); !ok {
		return errors.NotValidf("log level %q", c.LogLevel)
	}
	return nil
}

// StoreTables returns the table layout for the store layer.
func (c Config) StoreTables() store.Tables {
	t := c.Tables
	return store.Tables{
		Master:          t.Master,
		CoverageColumn:  t.CoverageColumn,
		LevelColumn:     t.LevelColumn,
		TileTableColumn: t.TileTableColumn,
		MinXColumn:      t.MinXColumn,
		MinYColumn:      t.MinYColumn,
		MaxXColumn:      t.MaxXColumn,
		MaxYColumn:      t.MaxYColumn,
		ResXColumn:      t.ResXColumn,
		ResYColumn:      t.ResYColumn,
		SRIDColumn:      t.SRIDColumn,
		StorageColumn:   t.StorageColumn,
		RasterColumn:    t.RasterColumn,
		PathColumn:      t.PathColumn,
	}
}

// PyramidOptions returns the access layer options. crs is the resolved
// CRSCode.
func (c Config) PyramidOptions(crs domain.CRS) pyramid.Options {
	return pyramid.Options{
		Tables:        c.StoreTables(),
		Coverage:      c.Coverage,
		CRS:           crs,
		Strategy:      c.Strategy,
		Workers:       c.Workers,
		DecodeTimeout: c.DecodeTimeout,
	}
}

// ConfigureLogging sets the level of every module logger.
func ConfigureLogging(level string) error {
	if err := loggo.ConfigureLoggers(fmt.Sprintf("<root>=%s", strings.ToUpper(level))); err != nil {
		return errors.Annotate(err, "configure logging")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
