package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.ngs.io/raster-pyramid/internal/config"
)

const version = "0.1.0"

// cli holds state shared by the subcommands.
type cli struct {
	v *viper.Viper
}

// load binds the global flags and reads the configuration.
func (c *cli) load(cmd *cobra.Command) (config.Config, error) {
	if err := c.v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(c.v)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.ConfigureLogging(cfg.LogLevel); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	config.LoadDotEnv()
	c := &cli{v: config.NewViper()}
	d := config.Default()

	root := &cobra.Command{
		Use:   "pyramidctl",
		Short: "raster pyramid tool",
		Long: fmt.Sprintf(`pyramidctl (v%s)

Builds, inspects and queries multi-resolution raster pyramids. Flags can
also be set as PYRAMID_<FLAG> environment variables (e.g. PYRAMID_DSN).`, version),
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("coverage", d.Coverage, "coverage name")
	flags.String("dialect", d.Dialect, "database dialect (sqlite, postgis)")
	flags.String("dsn", d.DSN, "database connection string")
	flags.String("crs", d.CRSCode, "fallback CRS code")
	flags.String("strategy", d.Strategy, "tile query strategy (streaming, bulk)")
	flags.Int("workers", d.Workers, "decode workers, 0 for one per CPU")
	flags.Duration("decode-timeout", d.DecodeTimeout, "maximum wait for decode tasks")
	flags.String("log-level", d.LogLevel, "log level (TRACE, DEBUG, INFO, WARNING, ERROR)")

	root.AddCommand(
		c.ingestCmd(),
		c.levelsCmd(),
		c.queryCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of pyramidctl",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "pyramidctl v%s\n", version)
			},
		},
	)
	return root
}
