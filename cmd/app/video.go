package main

import (
	"context"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/starford/postdesk/internal"
	"github.com/starford/postdesk/internal/video"
)

func videoCommand() *cli.Command {
	return &cli.Command{
		Name:  "video",
		Usage: "Upload videos and follow their processing",
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Upload a video file for a post",
				ArgsUsage: "<post id> <file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "Wait until the video is ready"},
				},
				Action: withApp(runVideoUpload),
			},
			{
				Name:      "status",
				Usage:     "Show the processing status of a video",
				ArgsUsage: "<video id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "Keep reporting until the video is ready or failed"},
				},
				Action: withApp(runVideoStatus),
			},
		},
	}
}

func runVideoUpload(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	postID, file := cmd.Args().Get(0), cmd.Args().Get(1)
	if postID == "" || file == "" {
		return usageError{name: "post id and file"}
	}

	update, done := app.Printer.Progress("Uploading " + filepath.Base(file))
	id, err := app.Videos.Upload(ctx, postID, file, update)
	done()
	if err != nil {
		return err
	}
	if id == "" {
		app.Printer.Success("Uploaded %s", filepath.Base(file))
		return nil
	}
	app.Printer.Success("Uploaded %s as video %s", filepath.Base(file), id)
	if !cmd.Bool("follow") {
		return nil
	}
	_, err = app.Tracker.Follow(ctx, id, app.Printer.VideoStatus)
	return err
}

func runVideoStatus(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	id, err := firstArg(cmd, "video id")
	if err != nil {
		return err
	}
	if cmd.Bool("follow") {
		_, err := app.Tracker.Follow(ctx, id, app.Printer.VideoStatus)
		return err
	}
	status, _, err := app.Tracker.Snapshot(ctx, id)
	if err != nil && status.View == video.ViewError {
		return err
	}
	app.Printer.VideoStatus(status)
	return nil
}
