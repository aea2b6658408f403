package cli

import (
	"github.com/spf13/cobra"

	"github.com/BlockAce01/Examind-sub001/internal/server"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
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

			return s.Migrate(cmd.Context())
		},
	}
}
