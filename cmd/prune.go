package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete snapshots of completed sessions",
	Long: `Delete stored snapshots of sessions that completed before the cutoff.
Results are kept and stay available through "adaptiq result".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan < 0 {
			return fmt.Errorf("--older-than must not be negative")
		}

		st, err := storeFromFlags(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.Sessions().PruneCompleted(cmd.Context(), time.Now().Add(-olderThan))
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d session snapshots.\n", n)
		return nil
	},
}

func init() {
	pruneCmd.Flags().Duration("older-than", 7*24*time.Hour, "Only prune sessions completed longer ago than this")
}
