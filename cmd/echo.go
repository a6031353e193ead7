package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qreplay/internal/echo"
)

var echoFlags struct {
	flaky  bool
	jitter time.Duration
}

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run a local deterministic echo endpoint for testing",
	Long: `Serves POST /query on the resolved port (--port, else the PORT env
var, else 8081), answering deterministically from the request body so
that repeated runs reconcile cleanly. Prometheus counters are exposed
on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := echo.NewServer(echo.Config{
			Port:   viper.GetInt("port"),
			Flaky:  echoFlags.flaky,
			Jitter: echoFlags.jitter,
		})
		return s.ListenAndServe()
	},
}

func init() {
	echoCmd.Flags().BoolVar(&echoFlags.flaky, "flaky", false, "make every second response to the same query differ")
	echoCmd.Flags().DurationVar(&echoFlags.jitter, "jitter", 0, "random per-request delay up to this duration")
	rootCmd.AddCommand(echoCmd)
}
