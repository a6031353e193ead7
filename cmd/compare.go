package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"qreplay/internal/corpus"
	"qreplay/internal/reconcile"
	"qreplay/internal/resultlog"
)

var compareFlags struct {
	ignore     string
	ignoreFrom string
	queries    string
}

var compareCmd = &cobra.Command{
	Use:   "compare [flags] LOG_A LOG_B",
	Short: "Compare two result logs by checksum",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		re, err := reconcile.ParseIgnoreFlag(compareFlags.ignore, compareFlags.ignoreFrom)
		if err != nil {
			return err
		}

		var corp *corpus.Corpus
		if compareFlags.queries != "" {
			if corp, err = corpus.FromFile(compareFlags.queries); err != nil {
				return err
			}
		}
		var ig *reconcile.Ignore
		if re != nil {
			if corp == nil {
				return errors.New("missing --queries option, needed for --ignore")
			}
			ig = reconcile.NewIgnore(re, corp)
		}

		a, b, err := reconcile.LoadBoth(cmd.Context(), args[0], args[1], ig)
		if err != nil {
			return err
		}
		report, err := reconcile.Compare(a, b, corp)
		if err != nil {
			return err
		}
		report.Render(os.Stdout)

		if n := report.Defects(); n > 0 {
			return errors.Errorf("comparison found %d defects", n)
		}
		return nil
	},
}

var debugCmd = &cobra.Command{
	Use:   "debug LOG",
	Short: "Dump a result log's parsed records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resultlog.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()
		for {
			rec, err := r.Read()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", rec)
		}
	},
}

var expandFlags struct {
	queries string
	force   bool
}

var expandCmd = &cobra.Command{
	Use:   "expand SRC_LOG DST_LOG",
	Short: "Rewrite a log with the query text added as a trailing column",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		corp, err := corpus.FromFile(expandFlags.queries)
		if err != nil {
			return err
		}
		return resultlog.Expand(args[0], args[1], corp, expandFlags.force)
	},
}

func init() {
	f := compareCmd.Flags()
	f.StringVar(&compareFlags.ignore, "ignore", "", "ignore queries matching this regex")
	f.StringVar(&compareFlags.ignoreFrom, "ignore-from", "", "ignore queries matching the regex in this file")
	f.StringVar(&compareFlags.queries, "queries", "", "the queries file matching the logs; required for --ignore")

	expandCmd.Flags().StringVar(&expandFlags.queries, "queries", "", "the queries file matching the log")
	expandCmd.MarkFlagRequired("queries")
	expandCmd.Flags().BoolVar(&expandFlags.force, "force", false, "overwrite an existing destination log")

	rootCmd.AddCommand(compareCmd, debugCmd, expandCmd)
}
