package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yaroslav/microdc/models"
)

var recreateConfirm bool

var recreateSchemaCmd = &cobra.Command{
	Use:   "recreate-schema",
	Short: "Drop and recreate every table",
	Long: `Drop every table of the state store and create the schema again.

All datacenters, workspaces, networks and device templates are lost. In the
production profile a populated store is only reset with --yes.`,
	RunE: runRecreateSchema,
}

func init() {
	rootCmd.AddCommand(recreateSchemaCmd)
	recreateSchemaCmd.Flags().BoolVar(&recreateConfirm, "yes", false,
		"Confirm resetting a populated production store")
}

func runRecreateSchema(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.store.RecreateSchema(cmd.Context(), recreateConfirm); err != nil {
		if errors.Is(err, models.ErrConfirmationRequired) {
			return fmt.Errorf("%w (re-run with --yes)", err)
		}
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Schema recreated")
	return nil
}
