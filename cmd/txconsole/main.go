package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "txconsole",
		Usage:   "Unified transaction console for the conversion, wallet and fiat ledgers",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a config file; defaults to the standard search paths",
				EnvVars: []string{"TXCONSOLE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before the configuration",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			if err := godotenv.Load(c.String("env-file")); err != nil && c.IsSet("env-file") {
				return fmt.Errorf("failed to load %s: %w", c.String("env-file"), err)
			}
			return nil
		},
		Action: runServe,
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			{
				Name:        "token",
				Usage:       "Operator token commands",
				Subcommands: []*cli.Command{issueTokenCommand()},
			},
			{
				Name:        "config",
				Usage:       "Configuration commands",
				Subcommands: []*cli.Command{printConfigCommand()},
			},
			{
				Name:        "audit",
				Usage:       "Audit trail commands",
				Subcommands: []*cli.Command{verifyAuditCommand()},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
