package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"go.ngs.io/raster-pyramid/internal/adapter/netcdfgrid"
	"go.ngs.io/raster-pyramid/internal/adapter/store/sqlite"
	"go.ngs.io/raster-pyramid/internal/app"
	"go.ngs.io/raster-pyramid/internal/domain"
	"go.ngs.io/raster-pyramid/internal/ingest"
	"go.ngs.io/raster-pyramid/internal/usecase"
)

func (c *cli) ingestCmd() *cobra.Command {
	var (
		opts   ingest.Options
		vars   netcdfgrid.Vars
		window string
	)
	cmd := &cobra.Command{
		Use:   "ingest FILE.nc",
		Short: "Build an SQLite pyramid from a NetCDF grid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Dialect != sqlite.Name {
				return errors.NotSupportedf("ingest into %q databases", cfg.Dialect)
			}
			if window != "" {
				env, err := domain.ParseBBox(window, domain.CRS{})
				if err != nil {
					return errors.NewNotValid(err, "window")
				}
				opts.Window = &env.Bound
			}
			db, _, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			opts.Coverage = cfg.Coverage
			opts.Tables = cfg.StoreTables()
			if opts.Workers == 0 {
				opts.Workers = cfg.Workers
			}
			levels, err := ingest.File(cmd.Context(), db, args[0], vars, opts)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LEVEL\tTABLE\tSIZE\tRES\tTILES")
			for _, l := range levels {
				fmt.Fprintf(w, "%d\t%s\t%dx%d\t%g\t%d\n", l.LevelID, l.TileTable, l.Width, l.Height, l.Res, l.Tiles)
			}
			return w.Flush()
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.Levels, "levels", 3, "number of pyramid levels")
	f.IntVar(&opts.TileSize, "tile-size", 256, "tile size in pixels")
	f.IntVar(&opts.SRID, "srid", 4326, "SRID of the grid coordinates")
	f.StringVar(&opts.OutOfRowDir, "out-of-row-dir", "", "write tile rasters to this directory instead of the database")
	f.StringVar(&window, "window", "", "only ingest the samples covering minx,miny,maxx,maxy")
	f.StringVar(&vars.X, "x-var", "", "name of the X coordinate variable")
	f.StringVar(&vars.Y, "y-var", "", "name of the Y coordinate variable")
	f.StringVar(&vars.Data, "data-var", "", "name of the data variable")
	return cmd
}

func (c *cli) levelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "Bootstrap a coverage and list its pyramid levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load(cmd)
			if err != nil {
				return err
			}
			access, db, err := app.OpenAccess(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tLEVEL\tRES_X\tRES_Y\tCRS\tSTORAGE\tEXTENT")
			for _, l := range usecase.NewTileUseCase(access).ListLevels() {
				fmt.Fprintf(w, "%d\t%d\t%g\t%g\t%s\t%s\t%g,%g,%g,%g\n",
					l.Index, l.LevelID, l.ResX, l.ResY, l.CRS, l.Storage,
					l.Extent[0], l.Extent[1], l.Extent[2], l.Extent[3])
			}
			return w.Flush()
		},
	}
}

func (c *cli) queryCmd() *cobra.Command {
	var (
		bbox          string
		width, height int
		level         int
		withData      bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a tile query and print the decoded tiles as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load(cmd)
			if err != nil {
				return err
			}
			env, err := domain.ParseBBox(bbox, domain.CRS{})
			if err != nil {
				return errors.NewNotValid(err, "bbox")
			}
			access, db, err := app.OpenAccess(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			req := usecase.TileRequest{Envelope: env, Width: width, Height: height, IncludeData: withData}
			if level >= 0 {
				req.Level = &level
			}
			resp, err := usecase.NewTileUseCase(access).Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	f := cmd.Flags()
	f.StringVar(&bbox, "bbox", "", "request envelope as minx,miny,maxx,maxy")
	f.IntVar(&width, "width", 256, "output width in pixels")
	f.IntVar(&height, "height", 256, "output height in pixels")
	f.IntVar(&level, "level", -1, "level index, -1 to choose from the resolution")
	f.BoolVar(&withData, "data", false, "include PNG-encoded pixels")
	_ = cmd.MarkFlagRequired("bbox")
	return cmd
}
