package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/starford/postdesk/internal"
	"github.com/starford/postdesk/internal/models"
)

func authCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "login",
			Usage: "Sign in with the device flow",
			Action: withApp(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
				info, err := app.Auth.Login(ctx)
				if err != nil {
					return err
				}
				app.Printer.Success("Signed in as %s", displayName(info))
				return nil
			}),
		},
		{
			Name:  "logout",
			Usage: "Forget the stored credentials",
			Action: withApp(func(_ context.Context, _ *cli.Command, app *internal.App) error {
				if err := app.Auth.Logout(); err != nil {
					return err
				}
				app.Printer.Success("Signed out")
				return nil
			}),
		},
		{
			Name:  "whoami",
			Usage: "Show the signed-in user",
			Action: withApp(func(_ context.Context, _ *cli.Command, app *internal.App) error {
				info, err := app.Auth.WhoAmI()
				if err != nil {
					return err
				}
				if info == nil {
					app.Printer.Warning("Not signed in")
					return nil
				}
				app.Printer.Info("%s", displayName(info))
				return nil
			}),
		},
	}
}

func displayName(info models.UserInfo) string {
	for _, key := range []string{"name", "email", "sub"} {
		if v, ok := info[key].(string); ok && v != "" {
			return v
		}
	}
	return "unknown user"
}
