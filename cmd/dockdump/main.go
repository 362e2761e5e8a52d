package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/semmidev/dockdump/internal/app"
	"github.com/semmidev/dockdump/internal/config"
	"github.com/semmidev/dockdump/internal/infrastructure/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cliApp := &cli.App{
		Name:  "dockdump",
		Usage: "back up databases running in Docker containers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				EnvVars: []string{"CONFIG_FILE_PATH"},
				Usage:   "path to config yaml",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "back up every configured database once, then purge",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "exit nonzero when any database failed",
					},
				},
				Action: withApp(func(c *cli.Context, a *app.App) error {
					summary, err := a.RunOnce(c.Context)
					if err != nil {
						return err
					}
					if c.Bool("strict") && !summary.Succeeded() {
						return cli.Exit(fmt.Sprintf("%d database backup(s) failed", len(summary.Failures)), 1)
					}
					return nil
				}),
			},
			{
				Name:  "daemon",
				Usage: "run backups on the configured cron schedule",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					return a.Daemon(c.Context)
				}),
			},
			{
				Name:  "purge",
				Usage: "delete backups older than purge_days",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					a.Purge(c.Context)
					return nil
				}),
			},
			{
				Name:  "verify",
				Usage: "check the gzip integrity of every backup",
				Action: withApp(func(_ *cli.Context, a *app.App) error {
					report, err := a.Verify()
					if err != nil {
						return err
					}
					if !report.OK() {
						return cli.Exit(fmt.Sprintf("%d corrupt backup(s)", len(report.Corrupt)), 1)
					}
					return nil
				}),
			},
			{
				Name:  "gdrive-auth",
				Usage: "obtain a Google Drive refresh token for a gdrive replica",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "client-secret",
						Required: true,
						Usage:    "path to the OAuth client secret json",
					},
					&cli.StringFlag{
						Name:  "addr",
						Value: ":8080",
						Usage: "listen address for the callback server",
					},
				},
				Action: func(c *cli.Context) error {
					log, err := logger.New(logger.Options{Level: "info"})
					if err != nil {
						return err
					}
					defer log.Close()

					srv, err := app.NewDriveAuthServer(log, c.String("client-secret"))
					if err != nil {
						return err
					}
					return srv.Serve(c.Context, c.String("addr"))
				},
			},
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withApp(action func(*cli.Context, *app.App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		a, err := app.New(c.Context, cfg)
		if err != nil {
			return fmt.Errorf("initialize app: %w", err)
		}
		defer a.Shutdown()

		return action(c, a)
	}
}
