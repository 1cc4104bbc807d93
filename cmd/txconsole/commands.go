package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Aidin1998/txconsole/common/auth"
	"github.com/Aidin1998/txconsole/internal/audit"
	"github.com/Aidin1998/txconsole/internal/database"
	"github.com/Aidin1998/txconsole/internal/infrastructure/config"
	"github.com/Aidin1998/txconsole/pkg/logger"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func loadConfig(c *cli.Context) (*config.Config, *zap.Logger, error) {
	log, err := logger.NewLogger("warn")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.NewLoader(log).Load(configPaths(c)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, log, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the ledger, operator and audit tables",
		Action: func(c *cli.Context) error {
			cfg, log, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.Database, log)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func issueTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "issue",
		Usage: "Mint an operator token signed with the configured secret",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "Operator id (token subject)", Required: true},
			&cli.StringFlag{Name: "name", Usage: "Operator display name"},
			&cli.StringSliceFlag{
				Name:  "permission",
				Usage: "Granted permission; repeat for several",
				Value: cli.NewStringSlice(auth.PermissionRead),
			},
			&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime; defaults to auth.token_ttl"},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}
			ttl := c.Duration("ttl")
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := auth.IssueToken(auth.AuthorizationConfig{
				Secret:   cfg.Auth.JWTSecret,
				Issuer:   cfg.Auth.Issuer,
				Audience: []string{cfg.Auth.Audience},
			}, models.Actor{
				ID:          c.String("id"),
				Name:        c.String("name"),
				Permissions: c.StringSlice("permission"),
			}, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
}

func printConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "print",
		Usage: "Print the effective configuration without secrets",
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
}

func verifyAuditCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Walk the audit hash chain and report broken links",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "from", Usage: "First sequence number"},
			&cli.Int64Flag{Name: "to", Usage: "Last sequence number; 0 means the end"},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.Database, log)
			if err != nil {
				return err
			}
			svc := audit.NewService(db, log, audit.Config{})
			defer svc.Close()

			report, err := svc.VerifyIntegrity(context.Background(), c.Int64("from"), c.Int64("to"))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.InvalidEvents > 0 {
				return cli.Exit(fmt.Sprintf("%d invalid audit events", report.InvalidEvents), 1)
			}
			return nil
		},
	}
}
