package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/starford/postdesk/internal/session"
)

// EditPost opens an edit session for a post, runs the editor on its
// document and pushes every save made until the editor exits. The session
// is pinned while the editor runs and disposed on every exit path.
func (a *App) EditPost(ctx context.Context, idOrSlug string, closeOnSave bool) error {
	sess, err := a.Posts.Edit(ctx, idOrSlug, session.OpenOptions{CloseOnSave: closeOnSave, Pinned: true})
	if err != nil {
		return err
	}
	defer a.Sessions.Close(sess.Path)

	abs, err := a.Store.Resolve(sess.Path)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ready := make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- a.Watcher().Run(wctx, ready) }()
	select {
	case <-ready:
	case err := <-errc:
		return fmt.Errorf("watch sandbox: %w", err)
	}

	a.Printer.Info("Editing %s", sess.URI)
	runErr := a.runEditor(ctx, abs)

	cancel()
	<-errc

	// Writes inside the last debounce window are picked up here.
	if err := a.Sessions.HandleSave(ctx, sess.Path); err != nil {
		a.Logger.Warn("final save failed",
			slog.String("path", sess.Path),
			slog.String("error", err.Error()))
	}
	if runErr != nil {
		return fmt.Errorf("editor: %w", runErr)
	}
	return nil
}

func (a *App) runEditor(ctx context.Context, path string) error {
	argv := strings.Fields(a.Config.Editor.Resolve())
	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = a.Printer.Out()
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

