package cmd

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"qreplay/internal/corpus"
	"qreplay/internal/runner"
)

var stdinCmd = &cobra.Command{
	Use:   "stdin",
	Short: "Read stdin and send that as a single query",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return errors.Wrap(err, "reading from stdin")
		}
		c, err := corpus.FromSingle(string(data))
		if err != nil {
			return err
		}
		r, err := runner.New(runner.Config{
			URL:     endpointURL(),
			Timeout: 30 * time.Second,
		}, c)
		if err != nil {
			return err
		}
		return r.RunSingle(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(stdinCmd)
}
