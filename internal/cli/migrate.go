package cli

import (
	"fmt"

	"github.com/RealZimboGuy/flowtrigger/pkg/flowtrigger"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command with its up and down subcommands.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := flowtrigger.DatabaseFromConfig()
			if err != nil {
				return err
			}
			if err := database.Migrate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all flowtrigger tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to drop all tables without --yes")
			}
			database, err := flowtrigger.DatabaseFromConfig()
			if err != nil {
				return err
			}
			if err := database.Rollback(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
			return nil
		},
	}
	down.Flags().BoolVar(&confirm, "yes", false, "confirm dropping all tables")
	cmd.AddCommand(down)

	return cmd
}
