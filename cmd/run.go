package cmd

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"qreplay/internal/corpus"
	"qreplay/internal/history"
	"qreplay/internal/runner"
)

var runFlags struct {
	concurrency   int
	repeat        int
	randomize     bool
	seed          int64
	outdir        string
	dropOutput    bool
	logPath       string
	extendedLog   bool
	force         bool
	collectErrors bool
	maxErrors     int
	dryRun        bool
	benchMemory   bool
	warmup        bool
	verbose       bool
	timeout       time.Duration
	noHistory     bool
}

var runCmd = &cobra.Command{
	Use:   "run [flags] QUERIES_FILE",
	Short: "Iterate over the lines of a file, each representing a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runFlags.verbose {
			log.SetLevel(log.DebugLevel)
		}

		c, err := corpus.FromFile(args[0])
		if err != nil {
			return err
		}

		cfg := runner.Config{
			URL:           endpointURL(),
			Concurrency:   runFlags.concurrency,
			Repeat:        runFlags.repeat,
			Randomize:     runFlags.randomize,
			Seed:          runFlags.seed,
			Outdir:        runFlags.outdir,
			DropOutput:    runFlags.dropOutput,
			LogPath:       runFlags.logPath,
			ExtendedLog:   runFlags.extendedLog,
			OverwriteLog:  runFlags.force,
			CollectErrors: runFlags.collectErrors,
			MaxErrors:     runFlags.maxErrors,
			DryRun:        runFlags.dryRun,
			BenchMemory:   runFlags.benchMemory,
			Warmup:        runFlags.warmup,
			Verbose:       runFlags.verbose,
			Timeout:       runFlags.timeout,
		}
		r, err := runner.New(cfg, c)
		if err != nil {
			return err
		}

		runErr := r.Run(cmd.Context())
		if cfg.DryRun || cfg.BenchMemory {
			return runErr
		}

		// Summary goes to stderr; stdout may carry response bodies.
		r.Summary(os.Stderr)
		if !runFlags.noHistory {
			saveHistory(cfg, r)
		}
		return runErr
	},
}

// saveHistory records the run summary; failures here must never turn
// a good run into a bad exit code.
func saveHistory(cfg runner.Config, r *runner.Runner) {
	path, err := history.DefaultPath()
	if err != nil {
		log.Warnf("not saving run history: %v", err)
		return
	}
	store, err := history.Open(path)
	if err != nil {
		log.Warnf("not saving run history: %v", err)
		return
	}
	defer store.Close()

	s := r.Stats()
	item := history.Summary{
		URL:         cfg.URL,
		Concurrency: cfg.Concurrency,
		Repeat:      cfg.Repeat,
		Requests:    s.Requests,
		HardErrors:  s.HardErrors,
		StatusTally: s.Tally(),
		P50Ms:       s.PercentileMs(50),
		P99Ms:       s.PercentileMs(99),
		DurationSec: r.Elapsed().Seconds(),
	}
	if err := store.Save(item); err != nil {
		log.Warnf("saving run history: %v", err)
	}
}

func init() {
	f := runCmd.Flags()
	f.IntVarP(&runFlags.concurrency, "concurrency", "c", 1, "how many requests to run concurrently")
	f.IntVar(&runFlags.repeat, "repeat", 1, "how many times to repeat the queries from the file")
	f.BoolVarP(&runFlags.randomize, "randomize", "r", false, "randomize the order of the requests")
	f.Int64Var(&runFlags.seed, "seed", 0, "randomization seed (0 = time-based)")
	f.StringVarP(&runFlags.outdir, "outdir", "o", "", "directory where each output is written as a file")
	f.BoolVarP(&runFlags.dropOutput, "drop", "d", false, "drop the output (overrides --outdir; default is stdout)")
	f.StringVar(&runFlags.logPath, "log", "", "path of the CSV result log to write")
	f.BoolVar(&runFlags.extendedLog, "extended-log", false, "add the query text as a trailing log column")
	f.BoolVar(&runFlags.force, "force", false, "overwrite an existing result log")
	f.BoolVar(&runFlags.collectErrors, "collect-errors", false, "buffer hard errors and emit them only at termination")
	f.IntVarP(&runFlags.maxErrors, "max-errors", "m", 5, "maximum number of hard errors accepted before aborting")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "print the (possibly randomized) instance list without executing")
	f.BoolVar(&runFlags.benchMemory, "bench-memory", false, "materialize the repeated plan, then idle for memory profiling")
	f.BoolVar(&runFlags.warmup, "warmup", false, "fire one disposable request before the run")
	f.BoolVarP(&runFlags.verbose, "verbose", "v", false, "verbose scheduling diagnostics")
	f.DurationVar(&runFlags.timeout, "timeout", 30*time.Second, "per-request timeout (0 = none)")
	f.BoolVar(&runFlags.noHistory, "no-history", false, "skip saving the run summary to the history db")

	rootCmd.AddCommand(runCmd)
}
