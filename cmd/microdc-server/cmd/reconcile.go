package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/util"
	"github.com/yaroslav/microdc/models"
)

var reconcileDatacenter string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass and print the result",
	Long: `Run a single reconciliation pass against the cluster and print the
result as JSON. Without --datacenter every datacenter is reconciled in turn.

Do not run this while a server is reconciling the same store: passes are only
serialized inside one process.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().StringVarP(&reconcileDatacenter, "datacenter", "d", "",
		"Datacenter UUID (default: all datacenters)")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	env, err := loadEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	ids := []string{reconcileDatacenter}
	if reconcileDatacenter == "" {
		if ids, err = env.datacenters.IDs(ctx); err != nil {
			return err
		}
	} else if err := util.ValidateUUID(reconcileDatacenter); err != nil {
		return fmt.Errorf("invalid --datacenter: %w", err)
	}

	r := env.reconciler()
	results := make([]*models.ReconcileResult, 0, len(ids))
	degraded := 0
	for _, id := range ids {
		res, err := r.Run(ctx, id)
		if err != nil {
			return fmt.Errorf("datacenter %s: %w", id, err)
		}
		if res.State == models.ReconcileDegraded {
			degraded++
			env.logger.Warn("pass degraded", zap.String(logging.FieldDatacenterID, id), zap.String("error", res.Error))
		}
		results = append(results, res)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	if degraded > 0 {
		return fmt.Errorf("%d of %d passes degraded", degraded, len(results))
	}
	return nil
}
