package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errRunFailed = errors.New("sync run failed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Perform one sync run and exit, non-zero on failure.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, _, release, err := buildPipeline(appConfig)
		if err != nil {
			return err
		}
		defer release()

		if res := p.Run(cmd.Context()); !res.Succeeded() {
			return errRunFailed
		}
		return nil
	},
}
