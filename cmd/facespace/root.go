package main

import (
	"fmt"
	"io"
	"os"

	"facespace/config"
	"facespace/internal/logger"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "facespace",
	Short: "Eigenface face identification service",
	Long: `facespace builds a face space from a labeled corpus of face images and
identifies new faces by nearest-class comparison in that space, rejecting
regions that do not look like a face or like any known identity.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logCloser, err = logger.Init(cfg.Log)
		if err != nil {
			log.Errorf("Failed to initialize logger completely: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
