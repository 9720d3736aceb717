package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yaroslav/microdc/internal/allocator"
	"github.com/yaroslav/microdc/models"
)

var poolsDatacenter string

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "Print address and tag pool occupancy",
	RunE:  runPools,
}

func init() {
	rootCmd.AddCommand(poolsCmd)
	poolsCmd.Flags().StringVarP(&poolsDatacenter, "datacenter", "d", "",
		"Datacenter UUID (default: all datacenters)")
}

func runPools(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	env, err := loadEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	var datacenters []models.Datacenter
	if poolsDatacenter != "" {
		dc, err := env.datacenters.Get(ctx, poolsDatacenter)
		if err != nil {
			return err
		}
		datacenters = append(datacenters, *dc)
	} else {
		resp, err := env.datacenters.List(ctx)
		if err != nil {
			return err
		}
		datacenters = resp.Datacenters
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATACENTER\tPOOL\tRANGE\tUSED\tFREE")
	for _, dc := range datacenters {
		for _, kind := range []allocator.Kind{allocator.KindAddress, allocator.KindTag} {
			usage, err := env.alloc.Usage(ctx, dc.ID, kind)
			if err != nil {
				return fmt.Errorf("datacenter %s: %w", dc.Name, err)
			}
			fmt.Fprintf(w, "%s\t%s\t%d-%d\t%d\t%d\n",
				dc.Name, kind, usage.Bounds.Min, usage.Bounds.Max, len(usage.Allocated), usage.Free)
		}
	}
	return w.Flush()
}
