package main

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/postdesk/internal"
)

var errArgs = errors.New("missing argument")

func firstArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.Args().First())
	if v == "" {
		return "", usageError{name: name}
	}
	return v, nil
}

type usageError struct{ name string }

func (e usageError) Error() string { return e.name + " is required" }
func (e usageError) Unwrap() error { return errArgs }

// pickPost offers the cached posts, fetching the list first when the cache
// is empty, and returns the id of the chosen one.
func pickPost(ctx context.Context, app *internal.App, in io.Reader) (string, error) {
	items, err := app.Posts.Cached()
	if err != nil || len(items) == 0 {
		if items, err = app.Posts.List(ctx); err != nil {
			return "", err
		}
	}
	it, err := app.Printer.PickPost(in, items)
	if err != nil {
		return "", err
	}
	return it.ID, nil
}

func postsCommand() *cli.Command {
	return &cli.Command{
		Name:  "posts",
		Usage: "List, read, create, edit and publish posts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List posts",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "offline", Usage: "Show the last fetched list without calling the platform"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					if cmd.Bool("offline") {
						items, err := app.Posts.Cached()
						if err != nil {
							return err
						}
						app.Printer.Posts(items)
						return nil
					}
					items, err := app.Posts.List(ctx)
					if err != nil {
						return err
					}
					app.Printer.Posts(items)
					return nil
				}),
			},
			{
				Name:      "search",
				Usage:     "Search the cached posts (run \"posts list\" to refresh)",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of results"},
				},
				Action: withApp(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
					query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
					if query == "" {
						return usageError{name: "query"}
					}
					hits, err := app.Posts.Search(query, int(cmd.Int("limit")))
					if err != nil {
						return err
					}
					app.Printer.SearchHits(hits)
					return nil
				}),
			},
			{
				Name:      "show",
				Usage:     "Print a post",
				ArgsUsage: "<id|slug>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					id, err := firstArg(cmd, "post id or slug")
					if err != nil {
						return err
					}
					d, err := app.Posts.Detail(ctx, id)
					if err != nil {
						return err
					}
					app.Printer.Post(d)
					return nil
				}),
			},
			{
				Name:      "create",
				Usage:     "Create a post",
				ArgsUsage: "<title>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "edit", Aliases: []string{"e"}, Usage: "Open the new post in the editor"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					title := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
					if title == "" {
						return usageError{name: "title"}
					}
					p, err := app.Posts.Create(ctx, title)
					if err != nil {
						return err
					}
					app.Printer.Success("Created %q (%s)", p.Fields.Title, p.ID)
					if !cmd.Bool("edit") {
						return nil
					}
					return app.EditPost(ctx, p.ID, true)
				}),
			},
			{
				Name:      "edit",
				Usage:     "Edit a post; every save is pushed to the platform. Without an argument, pick one",
				ArgsUsage: "[id|slug]",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					id := strings.TrimSpace(cmd.Args().First())
					if id == "" {
						picked, err := pickPost(ctx, app, os.Stdin)
						if err != nil {
							return err
						}
						id = picked
					}
					return app.EditPost(ctx, id, false)
				}),
			},
			{
				Name:      "publish",
				Usage:     "Publish a post",
				ArgsUsage: "<id|slug>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					id, err := firstArg(cmd, "post id or slug")
					if err != nil {
						return err
					}
					p, err := app.Posts.Publish(ctx, id)
					if err != nil {
						return err
					}
					app.Printer.Success("Published %q", p.Fields.Title)
					return nil
				}),
			},
		},
	}
}

func tagsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: "Browse tags and tag posts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List popular tags, or tags matching a filter",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "Label substring"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					tags, err := app.Posts.Tags(ctx, cmd.String("filter"))
					if err != nil {
						return err
					}
					app.Printer.Tags(tags)
					return nil
				}),
			},
			{
				Name:      "add",
				Usage:     "Attach a tag to a post",
				ArgsUsage: "<post id|slug> <tag id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					post, tag := cmd.Args().Get(0), cmd.Args().Get(1)
					if post == "" || tag == "" {
						return usageError{name: "post and tag id"}
					}
					if err := app.Posts.AddTag(ctx, post, tag); err != nil {
						return err
					}
					app.Printer.Success("Tagged %s with %s", post, tag)
					return nil
				}),
			},
		},
	}
}
