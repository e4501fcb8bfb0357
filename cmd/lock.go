package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/lockfile"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Show or refresh the schedule lock",
	RunE:  runLockShow,
}

var lockWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "Schedule and persist the result as the new lock",
	RunE:  runLockWrite,
}

func init() {
	lockCmd.AddCommand(lockWriteCmd)
	rootCmd.AddCommand(lockCmd)
}

func runLockShow(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	lock, err := lockfile.Read(cfg.LockPath)
	if err != nil {
		return err
	}
	if lock == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "no lock at %s\n", cfg.LockPath)
		return nil
	}

	ids := make([]string, 0, len(lock.Tasks))
	for id := range lock.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		tl := lock.Tasks[id]
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s  %s\n",
			id, tl.Start.Format("2006-01-02"), tl.End.Format("2006-01-02"))
	}
	return nil
}

func runLockWrite(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	res, err := runScheduling(cmd, cfg)
	if err != nil {
		return err
	}
	if err := lockfile.Write(cfg.LockPath, res, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "lock written to %s (%d tasks)\n", cfg.LockPath, len(res.ScheduledTasks))
	return nil
}
