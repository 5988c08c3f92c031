package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/zensync/internal"
	pkgconfig "github.com/starford/zensync/pkg/config"
)

var version = "dev"

// loadConfig reads the optional config file, then applies flag and
// environment overrides on top of it.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.IsSet("env") {
		cfg.Zenodo.Env = cmd.String("env")
	}
	if cmd.IsSet("token") {
		cfg.Zenodo.Token = cmd.String("token")
	}
	if cmd.IsSet("base-url") {
		cfg.Zenodo.BaseURL = cmd.String("base-url")
	}
	if cmd.IsSet("root") {
		cfg.Files.Root = cmd.String("root")
	}
	if cmd.IsSet("pattern") {
		cfg.Files.Pattern = cmd.String("pattern")
	}
	if cmd.IsSet("state") {
		cfg.Files.State = cmd.String("state")
	}
	if cmd.IsSet("skip-unchanged") {
		cfg.Sync.SkipUnchanged = cmd.Bool("skip-unchanged")
	}
	if cmd.IsSet("dry-run") {
		cfg.Sync.DryRun = cmd.Bool("dry-run")
	}
	if cmd.IsSet("no-ledger") {
		cfg.Ledger.Enabled = !cmd.Bool("no-ledger")
	}

	if err := pkgconfig.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// action adapts an internal entry point to a cli action.
func action(run func(ctx context.Context, opts ...internal.Option) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
	}
}

func history(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ShowHistory(ctx, cmd.String("path"), int(cmd.Int("limit")), internal.WithConfig(cfg))
}

func main() {
	cmd := &cli.Command{
		Name:    "zensync",
		Usage:   "Publish local PDFs to Zenodo, one concept DOI per file, new versions on every change",
		Version: version,
		Action:  action(internal.RunSync),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Zenodo instance: production or sandbox",
				Sources: cli.EnvVars("ZENODO_ENV"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Zenodo personal access token",
				Sources: cli.EnvVars("ZENODO_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Zenodo base URL, overrides --env",
				Sources: cli.EnvVars("ZENODO_BASE_URL"),
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "Workspace directory",
			},
			&cli.StringFlag{
				Name:  "pattern",
				Usage: "Glob of files to publish, relative to the workspace",
			},
			&cli.StringFlag{
				Name:  "state",
				Usage: "Publication state file, relative to the workspace",
			},
			&cli.BoolFlag{
				Name:  "skip-unchanged",
				Usage: "Skip files whose content matches the last published version",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the plan without contacting Zenodo or writing state",
			},
			&cli.BoolFlag{
				Name:  "no-ledger",
				Usage: "Do not record publications in the history database",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Publish every matching file once (default command)",
				Action: action(internal.RunSync),
			},
			{
				Name:   "watch",
				Usage:  "Sync, then re-sync whenever matching files change",
				Action: action(internal.RunWatch),
			},
			{
				Name:   "serve",
				Usage:  "Serve the status API, optionally with the watcher",
				Action: action(internal.RunServe),
			},
			{
				Name:   "mcp",
				Usage:  "Serve read-only MCP tools on stdio",
				Action: action(internal.RunMCP),
			},
			{
				Name:   "state",
				Usage:  "Print the publication state",
				Action: action(internal.ShowState),
			},
			{
				Name:  "history",
				Usage: "Print published versions, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Only show this file",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum rows",
						Value: 50,
					},
				},
				Action: history,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
