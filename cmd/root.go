// Package cmd wires the CLI. The interesting machinery lives in
// internal/; this layer only parses flags, resolves the endpoint and
// maps errors to the process exit code.
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var flagURL string

var rootCmd = &cobra.Command{
	Use:   "qreplay",
	Short: "Replay a query corpus against an HTTP endpoint and reconcile the result logs",
	Long: `qreplay posts each line of a query file to an endpoint under a
concurrency cap, streams every response into a 64-bit checksum, and
writes a compact CSV log of outcomes. Two such logs can be compared
to detect behavioral divergence between runs without storing any
response bodies.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{})

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "",
		"explicit endpoint URL; overrides --port and the PORT env var")
	rootCmd.PersistentFlags().Int("port", 8081,
		"port for the default URL; the PORT env var can also be set")
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindEnv("port", "PORT")

	rootCmd.AddCommand(defaultsCmd)
}

// defaultURL resolves http://localhost:{port}/query with the port
// taken from the flag, else the PORT env var, else 8081.
func defaultURL() string {
	return fmt.Sprintf("http://localhost:%d/query", viper.GetInt("port"))
}

// endpointURL is the full resolution chain: explicit --url wins.
func endpointURL() string {
	if flagURL != "" {
		return flagURL
	}
	return defaultURL()
}

var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Show the default URL",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Default url: %s\n", defaultURL())
	},
}
