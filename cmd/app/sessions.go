package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/postdesk/internal"
	"github.com/starford/postdesk/internal/session"
)

// sessionsCommand manages the edit sessions of a running dashboard; sessions
// live in the serving process, not in the state database.
func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List, open and close edit sessions in a running dashboard",
		Action: withApp(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
			var infos []session.Info
			if err := callDashboard(ctx, app.Config, http.MethodGet, "/api/sessions", &infos); err != nil {
				return err
			}
			app.Printer.Sessions(infos)
			return nil
		}),
		Commands: []*cli.Command{
			{
				Name:      "open",
				Usage:     "Open a post for editing; saves to the printed file are pushed by the server",
				ArgsUsage: "<id|slug>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					id, err := firstArg(cmd, "post id or slug")
					if err != nil {
						return err
					}
					var opened struct {
						session.Info
						File string `json:"file"`
					}
					path := "/api/posts/" + url.PathEscape(id) + "/edit"
					if err := callDashboard(ctx, app.Config, http.MethodPost, path, &opened); err != nil {
						return err
					}
					app.Printer.Success("Opened %s", opened.URI)
					if opened.File != "" {
						app.Printer.Info("Edit %s", opened.File)
					}
					return nil
				}),
			},
			{
				Name:      "close",
				Usage:     "Close an edit session",
				ArgsUsage: "<session id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					id, err := firstArg(cmd, "session id")
					if err != nil {
						return err
					}
					if err := callDashboard(ctx, app.Config, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil); err != nil {
						return err
					}
					app.Printer.Success("Closed %s", id)
					return nil
				}),
			},
		},
	}
}

// callDashboard sends one request to the dashboard at the configured
// address and decodes the answer into out when out is non-nil.
func callDashboard(ctx context.Context, cfg *internal.Config, method, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	addr := cfg.App.HTTP.Address()
	req, err := http.NewRequestWithContext(ctx, method, "http://"+addr+path, nil)
	if err != nil {
		return err
	}
	if cfg.Dashboard.AuthEnabled() {
		req.Header.Set("Authorization", "Bearer "+cfg.Dashboard.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("dashboard not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("dashboard answered %s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("dashboard answered %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode dashboard response: %w", err)
	}
	return nil
}
