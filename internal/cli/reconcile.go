package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BlockAce01/Examind-sub001/internal/server"
)

func newReconcileCmd(configPath *string) *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-score claimed attempts that were never scored",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			s, err := server.Init(c)
			if err != nil {
				return err
			}
			defer s.Shutdown()

			n, err := s.Reconcile(cmd.Context(), batch)
			if err != nil {
				return err
			}

			slog.Info("reconcile: done", "recovered", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 100, "maximum attempts to reconcile")
	return cmd
}
