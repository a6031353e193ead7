package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"qreplay/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List summaries of past runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := history.DefaultPath()
		if err != nil {
			return err
		}
		store, err := history.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		items, err := store.List(historyLimit)
		if err != nil {
			return err
		}
		for _, it := range items {
			fmt.Printf("%s  %s  c=%d repeat=%d  %d requests, %d hard errors, p99 %.1fms, %.1fs\n",
				it.Time.Format("2006-01-02 15:04:05"), it.URL,
				it.Concurrency, it.Repeat,
				it.Requests, it.HardErrors, it.P99Ms, it.DurationSec)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of entries to list")
	rootCmd.AddCommand(historyCmd)
}
