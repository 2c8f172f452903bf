package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kasbook/internal/cli"
	"kasbook/internal/log"
)

// session carries the wired application between the root hooks and the
// subcommands of one invocation.
type session struct {
	app    *cli.App
	logger *log.Logger
}

// newRootCmd builds the command tree. The returned close func releases the
// store and the publisher opened by whichever subcommand ran.
func newRootCmd() (*cobra.Command, func() error) {
	s := &session{}

	root := &cobra.Command{
		Use:   "kasbook",
		Short: "kasbook maintains the print-shop cash book",
		Long: `kasbook maintains the cash book of the print shop: it records entries,
recomputes the running columns and profit shares, and manages archive periods.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			cfg, err := cli.LoadConfig()
			if err != nil {
				return err
			}
			s.logger = cli.SetupLogger(cfg.LogLevel, cmd.ErrOrStderr()).WithComponent(log.ComponentCLI)

			app, err := cli.Open(cmd.Context(), s.logger.Logger, cfg)
			if err != nil {
				return fmt.Errorf("open cash book: %w", err)
			}
			s.app = app
			cmd.SetContext(log.NewContext(cmd.Context(), s.logger))
			return nil
		},
	}

	root.AddCommand(
		s.recalcCmd(),
		s.verifyCmd(),
		s.summaryCmd(),
		s.listCmd(),
		s.addCmd(),
		s.updateCmd(),
		s.deleteCmd(),
		s.importCmd(),
		s.overrideCmd(),
		s.reorderCmd(),
		s.archiveCmd(),
		s.restoreCmd(),
		s.archivesCmd(),
		s.archivedCmd(),
		s.recordCmd(),
		s.requestCmd(),
	)
	return root, s.close
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Close()
	s.app = nil
	return err
}
