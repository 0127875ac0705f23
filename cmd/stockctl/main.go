// Command stockctl runs migrations and the inventory batch jobs from the
// command line.
package main

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("warning: could not load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "stockctl",
		Usage: "Operate the stockflow inventory engine",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log at debug level",
				EnvVars: []string{"STOCKCTL_VERBOSE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "Apply all pending migrations", Action: migrateUp},
					{Name: "down", Usage: "Roll back every migration", Action: migrateDown},
					{Name: "version", Usage: "Print the applied schema version", Action: migrateVersion},
				},
			},
			{
				Name:  "normalize",
				Usage: "Rebuild the daily demand series of every active product",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "window",
						Usage: "Days to rebuild, 0 uses the configured window",
						Value: 0,
					},
				},
				Before: openEngine,
				After:  closeEngine,
				Action: runNormalize,
			},
			{
				Name:   "cleanup",
				Usage:  "Purge closed alerts, superseded results and old demand records",
				Before: openEngine,
				After:  closeEngine,
				Action: runCleanup,
			},
			{
				Name:   "scan",
				Usage:  "Evaluate every alert rule for every active product",
				Before: openEngine,
				After:  closeEngine,
				Action: runScan,
			},
			{
				Name:  "optimize",
				Usage: "Compute and store EOQ and reorder point for one product",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "product", Usage: "Product ID", Required: true},
					&cli.Float64Flag{Name: "holding-cost", Usage: "Annual holding cost per unit"},
					&cli.Float64Flag{Name: "holding-rate", Usage: "Annual holding cost as a fraction of unit cost"},
					&cli.Float64Flag{Name: "order-cost", Usage: "Fixed cost per order", Required: true},
					&cli.Float64Flag{Name: "annual-demand", Usage: "Annual demand, defaults to the demand history"},
					&cli.IntFlag{Name: "lead-time", Usage: "Lead time in days, defaults to the catalog"},
					&cli.Float64Flag{Name: "service-level", Usage: "Service level factor (z), defaults to configuration"},
					&cli.IntFlag{Name: "window", Usage: "Demand history window in days"},
				},
				Before: openEngine,
				After:  closeEngine,
				Action: runOptimize,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
