package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadcheck/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show business counts by validation state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.CountByStatus(cmd.Context())
		if err != nil {
			return err
		}

		states := make([]string, 0, len(counts))
		total := 0
		for state, n := range counts {
			states = append(states, string(state))
			total += n
		}
		sort.Strings(states)

		for _, state := range states {
			fmt.Printf("%-22s %d\n", state, counts[model.ValidationState(state)])
		}
		fmt.Printf("%-22s %d\n", "TOTAL", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
