package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/lockfile"
	"github.com/papapumpkin/pulsar/internal/model"
	"github.com/papapumpkin/pulsar/internal/resource"
	"github.com/papapumpkin/pulsar/internal/roadmap"
	"github.com/papapumpkin/pulsar/internal/sched"
	"github.com/papapumpkin/pulsar/internal/trace"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Compute the roadmap schedule",
	RunE:  runSchedule,
}

func init() {
	scheduleCmd.Flags().String("algorithm", "", "engine: parallel_sgs, bounded_rollout, critical_path, cpsat")
	scheduleCmd.Flags().Bool("use-lock", false, "pin tasks recorded in the lock file")
	scheduleCmd.Flags().Bool("write-lock", false, "write the computed schedule to the lock file")
	_ = viper.BindPFlag("algorithm", scheduleCmd.Flags().Lookup("algorithm"))
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	res, err := runScheduling(cmd, cfg)
	if err != nil {
		return err
	}
	printResult(cmd, res, cfg.Verbose)

	if write, _ := cmd.Flags().GetBool("write-lock"); write {
		if err := lockfile.Write(cfg.LockPath, res, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "lock written to %s\n", cfg.LockPath)
	}
	return nil
}

// runScheduling wires the boundary inputs into one service request.
func runScheduling(cmd *cobra.Command, cfg config.Config) (*model.Result, error) {
	rm, err := roadmap.Load(cfg.RoadmapPath)
	if err != nil {
		return nil, err
	}
	reg, err := resource.LoadCatalog(cfg.ResourcePath)
	if err != nil {
		return nil, err
	}

	algorithm := model.Algorithm(cfg.Algorithm)
	if rm.Algorithm != "" {
		algorithm = rm.Algorithm
	}
	if flagAlg, _ := cmd.Flags().GetString("algorithm"); flagAlg != "" {
		algorithm = model.Algorithm(flagAlg)
	}

	var lock *lockfile.Lock
	if useLock, _ := cmd.Flags().GetBool("use-lock"); useLock {
		if lock, err = lockfile.Read(cfg.LockPath); err != nil {
			return nil, err
		}
	}

	var tracer *trace.Emitter
	if cfg.TracePath != "" {
		tracer, err = trace.NewEmitter(cfg.TracePath, uuid.NewString())
		if err != nil {
			return nil, err
		}
		defer tracer.Close()
	}

	res, err := sched.Run(sched.Request{
		Tasks:     rm.Tasks,
		Registry:  reg,
		Current:   rm.Current,
		Algorithm: algorithm,
		Config:    cfg.Scheduling(),
		Completed: rm.Completed,
		Lock:      lock,
		Tracer:    tracer,
	})
	if err != nil {
		return nil, err
	}
	res.Warnings = append(rm.Warnings, res.Warnings...)
	return res, nil
}

func printResult(cmd *cobra.Command, res *model.Result, verbose bool) {
	out := cmd.OutOrStdout()
	for _, st := range res.ScheduledTasks {
		fmt.Fprintf(out, "%-24s %s  %s  %v\n",
			st.TaskID,
			st.Start.Format("2006-01-02"),
			st.End.Format("2006-01-02"),
			st.Resources)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if verbose {
		keys := make([]string, 0, len(res.Metadata))
		for k := range res.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "# %s = %s\n", k, res.Metadata[k])
		}
	}
}
