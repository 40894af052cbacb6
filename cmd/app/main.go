package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/postdesk/internal"
	pkgconfig "github.com/starford/postdesk/pkg/config"
)

var version = "dev"

// errReported marks a failure the printer has already shown.
var errReported = errors.New("reported")

type appAction func(ctx context.Context, cmd *cli.Command, app *internal.App) error

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// withApp builds the application for one command and reports any failure
// in user terms.
func withApp(fn appAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := internal.New(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
		if err != nil {
			return fmt.Errorf("app init error: %w", err)
		}
		defer app.Close()

		if err := fn(ctx, cmd, app); err != nil {
			app.Logger.Debug("command failed",
				slog.String("command", cmd.Name),
				slog.String("error", err.Error()))
			app.Printer.Error("%s", describe(err))
			return errReported
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "postdesk",
		Usage:   "Browse, edit and publish posts on a content platform",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: append([]*cli.Command{
			postsCommand(),
			tagsCommand(),
			videoCommand(),
			sessionsCommand(),
			{
				Name:   "clear",
				Usage:  "Remove every document from the local sandbox",
				Action: withApp(runClear),
			},
			{
				Name:   "serve",
				Usage:  "Run the local dashboard with live updates",
				Action: withApp(runServe),
			},
			{
				Name:   "mcp",
				Usage:  "Serve agent tools over stdio",
				Action: withApp(runMCP),
			},
		}, authCommands()...),
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errReported) {
			slog.Error("application error", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}
}

func runClear(_ context.Context, _ *cli.Command, app *internal.App) error {
	if err := app.Store.ClearAll(); err != nil {
		return err
	}
	app.Printer.Success("Sandbox cleared")
	return nil
}

func runServe(ctx context.Context, _ *cli.Command, app *internal.App) error {
	app.Printer.Info("Dashboard on http://%s", app.Config.App.HTTP.Address())
	return app.Serve(ctx)
}

func runMCP(_ context.Context, _ *cli.Command, app *internal.App) error {
	return app.MCP().ServeStdio()
}
