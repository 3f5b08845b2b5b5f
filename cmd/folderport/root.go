package main

import (
	"fmt"
	"os"

	"github.com/ZerkerEOD/folderport/internal/config"
	"github.com/ZerkerEOD/folderport/internal/version"
	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootOptions holds the flags shared by every subcommand
type rootOptions struct {
	envFile     string
	foldersFile string
	targetHost  string
	listenHost  string
	receiveDir  string
	statusAddr  string
	journalDSN  string
	debug       bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "folderport",
		Short: "Watch folders and ship new files to TCP receivers",
		Long: `folderport watches configured folders, waits for new files to stop growing
and streams each one to the receiver listening on the folder's target port.
The same binary runs the receiving side, one listener per configured port.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.loadEnvironment()
		},
	}
	cmd.Version = version.GetVersion()
	cmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", "", "Load environment from this file instead of ./.env")
	flags.StringVar(&opts.foldersFile, "folders", "", "Folder configuration file (YAML)")
	flags.StringVar(&opts.targetHost, "target-host", "", "Host the sender connects to")
	flags.StringVar(&opts.listenHost, "listen-host", "", "Interface the receiver binds to")
	flags.StringVar(&opts.receiveDir, "receive-dir", "", "Root directory for received files")
	flags.StringVar(&opts.statusAddr, "status-addr", "", "Serve the status API on this address")
	flags.StringVar(&opts.journalDSN, "journal-dsn", "", "Postgres DSN for the transfer journal")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newRunCommand(opts, "run", "Run the folder scanner and the receivers"),
		newSendCommand(opts),
		newReceiveCommand(opts),
		newPushCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// loadEnvironment applies the .env file and re-reads the logging settings
func (o *rootOptions) loadEnvironment() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", o.envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if o.debug {
		os.Setenv("DEBUG", "true")
		os.Setenv("LOG_LEVEL", "DEBUG")
	}
	debug.Reinitialize()
	return nil
}

// config builds the daemon configuration. Flags given on the command line win
// over the environment.
func (o *rootOptions) config(cmd *cobra.Command) *config.Config {
	cfg := config.NewConfig()

	override := func(name string, dst *string, value string) {
		if f := cmd.Flag(name); f != nil && f.Changed {
			*dst = value
		}
	}
	override("folders", &cfg.FoldersFile, o.foldersFile)
	override("target-host", &cfg.TargetHost, o.targetHost)
	override("listen-host", &cfg.ListenHost, o.listenHost)
	override("receive-dir", &cfg.ReceiveDir, o.receiveDir)
	override("status-addr", &cfg.StatusAddr, o.statusAddr)
	override("journal-dsn", &cfg.JournalDSN, o.journalDSN)
	return cfg
}
