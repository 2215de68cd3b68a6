package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/gatepass/server/internal/config"
	"github.com/BrandonDHaskell/gatepass/server/internal/logger"
)

var (
	cfg       config.Config
	appLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "gatepass-server",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "Visitor pass and QR gate access server",
	Long: `gatepass-server issues visitor passes, signs time-limited QR codes for
approved passes and verifies them at registered gate tablets.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.FromEnv()
		if err != nil {
			log.Printf("failed to load configuration: %v", err.Error())
			return err
		}

		appLogger = logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Env)
		return nil
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, tokenCmd, keygenCmd, scanCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
