package main

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/msomdec/book-catalog/internal/client"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	app := newApp(NewRunner(RunnerOpts{Logger: logger}))

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, client.ErrUnauthenticated) {
			logger.Error("not signed in; run `bookctl login` first")
			os.Exit(2)
		}
		logger.Fatalf("bookctl: %v", err)
	}
}

func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:  "bookctl",
		Usage: "Manage the book catalog from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "bookctl.toml",
				Sources: cli.EnvVars("BOOKCTL_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Catalog server URL (overrides the config file)",
				Sources: cli.EnvVars("BOOKCTL_SERVER"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Commands: runner.register(),
	}
}
