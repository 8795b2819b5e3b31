package main

import (
	"time"

	"signin-token-sync/internal/browser"
	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/pipeline"
	"signin-token-sync/internal/server"

	"github.com/spf13/cobra"
)

const cleanupInterval = 30 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for HTTP triggers and run a sync for each one.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		p, store, release, err := buildPipeline(appConfig)
		if err != nil {
			return err
		}
		defer release()

		browser.StartCleanup(ctx, cleanupInterval)

		runner := pipeline.NewRunner(p)
		var runs server.Lister
		if store != nil {
			runs = store
		}
		h := server.New(ctx, runner, runs)

		err = server.ListenAndServe(ctx, appConfig.Server.Addr, h.Router())

		logging.Log.Info("Waiting for in-flight sync run")
		runner.Wait()
		return err
	},
}
