package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ZerkerEOD/folderport/internal/config"
	"github.com/ZerkerEOD/folderport/internal/models"
	"github.com/ZerkerEOD/folderport/internal/sender"
	"github.com/ZerkerEOD/folderport/pkg/console"
	"github.com/spf13/cobra"
)

type pushOptions struct {
	port int
	move bool
}

func newPushCommand(opts *rootOptions) *cobra.Command {
	push := &pushOptions{}

	cmd := &cobra.Command{
		Use:   "push FILE",
		Short: "Send a single file to a receiver port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPush(ctx, opts.config(cmd), args[0], push)
		},
	}
	cmd.Flags().IntVarP(&push.port, "port", "p", 0, "Receiver port")
	cmd.Flags().BoolVar(&push.move, "move", false, "Delete the file after the receiver confirms it")
	cmd.MarkFlagRequired("port")
	return cmd
}

func runPush(ctx context.Context, cfg *config.Config, path string, opts *pushOptions) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	folder := models.FolderMonitorConfig{
		FolderPath: filepath.Dir(abs),
		TargetPort: opts.port,
		FileAction: models.FileActionCopy,
		Enabled:    true,
		Monitoring: models.DefaultMonitoringSettings(),
	}
	if opts.move {
		folder.FileAction = models.FileActionMove
	}
	if err := (config.Folders{folder}).Validate(); err != nil {
		return err
	}

	snd := sender.New(sender.Config{
		Host:        cfg.TargetHost,
		DialTimeout: cfg.DialTimeout,
		IOTimeout:   cfg.IOTimeout,
	}, nil, nil)

	res, err := snd.Send(ctx, abs, folder)
	if err != nil {
		return err
	}
	console.Success("%s", res.Verdict.Message)
	console.Info("blake2b-256 %s", res.Digest)
	return nil
}
