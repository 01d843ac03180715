package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"concierge/internal/index"
	"concierge/internal/store"
)

var flagSamples int

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print chunk cache statistics and integrity checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		st, err := store.Open(cfg.CachePath)
		if err != nil {
			return err
		}
		defer st.Close()

		return index.Report(os.Stdout, st, flagSamples)
	},
}

func init() {
	inspectCmd.Flags().IntVar(&flagSamples, "samples", 5, "number of sample chunks to print")
	rootCmd.AddCommand(inspectCmd)
}
