package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZerkerEOD/folderport/internal/config"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/ZerkerEOD/folderport/internal/session"
	"github.com/ZerkerEOD/folderport/internal/version"
	"github.com/ZerkerEOD/folderport/pkg/console"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 30 * time.Second

func newRunCommand(opts *rootOptions, use, short string) *cobra.Command {
	return newSessionCommand(opts, session.ModeAll, use, short)
}

func newSendCommand(opts *rootOptions) *cobra.Command {
	return newSessionCommand(opts, session.ModeSend, "send", "Run only the folder scanner")
}

func newReceiveCommand(opts *rootOptions) *cobra.Command {
	return newSessionCommand(opts, session.ModeReceive, "receive", "Run only the receivers")
}

func newSessionCommand(opts *rootOptions, mode session.Mode, use, short string) *cobra.Command {
	var shutdownTimeout time.Duration
	var quiet bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd.Context(), opts.config(cmd), mode, shutdownTimeout, quiet)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "How long to wait for in-flight transfers on exit")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print transfer events")
	return cmd
}

func runSession(parent context.Context, cfg *config.Config, mode session.Mode, shutdownTimeout time.Duration, quiet bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := config.NewFileSource(cfg.FoldersFile)
	if err != nil {
		return fmt.Errorf("failed to load folder configuration: %w", err)
	}
	for _, f := range source.Current().Enabled() {
		console.Info("%s [%s]", f.DisplayName(), f.AutoDetect.DisplayText())
	}

	sess := session.New(cfg, source, mode)
	console.Status("Starting folderport %s (%s)", version.GetVersion(), mode)

	g, gctx := errgroup.WithContext(ctx)
	unsubscribe := func() {}
	if !quiet {
		events, cancel := sess.Hub().Subscribe(256)
		unsubscribe = cancel
		g.Go(func() error {
			printEvents(events)
			return nil
		})
	}
	g.Go(func() error {
		// the printer drains until the session, including its final
		// session_stopped event, is fully shut down
		defer unsubscribe()
		return sess.Run(gctx, shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	console.Status("folderport stopped")
	return nil
}

// printEvents writes transfer events to the terminal until the subscription
// is cancelled
func printEvents(events <-chan status.Event) {
	for e := range events {
		printEvent(e)
	}
}

func printEvent(e status.Event) {
	switch e.Type {
	case status.EventSendSucceeded:
		console.Success("Sent %s (%s) to port %d", e.File, console.FormatBytes(e.Bytes), e.Port)
	case status.EventReceiveSucceeded:
		console.Success("Received %s (%s) on port %d", e.File, console.FormatBytes(e.Bytes), e.Port)
	case status.EventSendFailed, status.EventReceiveFailed, status.EventListenerFailed,
		status.EventSourceDeleteFailed, status.EventCycleError:
		console.Error("%s: %s %s", e.Type, e.File, e.Message)
	case status.EventDirectoryMissing:
		console.Warning("Folder %s does not exist", e.Folder)
	case status.EventListenerStarted:
		console.Info("Listening on port %d -> %s", e.Port, e.Folder)
	case status.EventTempCleaned:
		console.Info("Removed stale %s", e.File)
	case status.EventSessionStopped:
		console.Info("Session stopped")
	}
}
