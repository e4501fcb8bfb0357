package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/graph"
	"github.com/papapumpkin/pulsar/internal/resource"
	"github.com/papapumpkin/pulsar/internal/roadmap"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the roadmap and resource catalog without scheduling",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	rm, err := roadmap.Load(cfg.RoadmapPath)
	if err != nil {
		return err
	}
	reg, err := resource.LoadCatalog(cfg.ResourcePath)
	if err != nil {
		return err
	}

	// The graph build rejects dependency cycles; spec expansion rejects
	// references to undefined resources or groups.
	if _, err := graph.Build(rm.Tasks, rm.Completed); err != nil {
		return err
	}
	for _, t := range rm.Tasks {
		if t.ResourceSpec == "" {
			continue
		}
		if _, err := reg.Expand(t.ResourceSpec); err != nil {
			return fmt.Errorf("task %q: %w", t.ID, err)
		}
	}

	for _, w := range rm.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d tasks, %d resources\n", len(rm.Tasks), len(reg.Order()))
	return nil
}
