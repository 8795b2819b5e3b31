package main

import (
	"errors"
	"fmt"
	"os"

	"signin-token-sync/internal/browser"
	"signin-token-sync/internal/config"
	"signin-token-sync/internal/history"
	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/mailbox"
	"signin-token-sync/internal/models"
	"signin-token-sync/internal/notify"
	"signin-token-sync/internal/pipeline"
	"signin-token-sync/internal/tokenstore"

	"github.com/spf13/cobra"
)

var (
	configFilename string
	appConfig      *models.Config

	rootCmd = &cobra.Command{
		Use:   "signin-sync",
		Short: "Sign in with an emailed verification code and forward the session token.",
		Long: `signin-sync drives a headless browser through a login form protected by an emailed
6-digit code, captures the resulting session token and posts it to a token store.

Run it once with "run", or keep it listening for HTTP triggers with "serve".`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configFilename,
		"config",
		"c",
		config.DefaultConfigFilename,
		"path to the YAML configuration file, environment variables override it")

	rootCmd.AddCommand(runCmd, serveCmd, historyCmd)
}

// initConfig loads the configuration. A missing default file is not an error so the
// tool can be configured from the environment alone.
func initConfig(cmd *cobra.Command, _ []string) error {
	path := configFilename
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		logging.Log.WithError(err).Error("Failed to load configuration")
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	appConfig = cfg
	return nil
}

// buildPipeline wires every collaborator of a sync run. The returned func releases them.
func buildPipeline(cfg *models.Config) (*pipeline.Pipeline, *history.Store, func(), error) {
	newBrowser, err := browser.NewFactory(cfg.Browser)
	if err != nil {
		return nil, nil, nil, err
	}

	var open mailbox.Opener
	switch cfg.Mail.Provider {
	case config.ProviderGmail:
		open = mailbox.OpenGmail(cfg.Mail.Gmail)
	default:
		open = mailbox.OpenIMAP(cfg.Mail, nil)
	}

	opts := []pipeline.Option{pipeline.WithNotifier(notify.New(cfg.Notify))}

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open run history: %w", err)
		}
		opts = append(opts, pipeline.WithHistory(store))
	}

	p := pipeline.New(
		cfg,
		newBrowser,
		mailbox.NewPoller(open, cfg.Mail),
		tokenstore.NewClient(cfg.TokenStore.URL, cfg.TokenStore.Timeout, nil),
		opts...,
	)

	release := func() {
		if store != nil {
			if err := store.Close(); err != nil {
				logging.Log.WithError(err).Warn("Failed to close run history")
			}
		}
	}
	return p, store, release, nil
}
