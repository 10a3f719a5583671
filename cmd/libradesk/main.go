// cmd/libradesk/main.go
package main

import (
	"fmt"
	"libradesk/internal/config"
	"libradesk/pkg/logger"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	serverURL  string

	cfg *config.Config
	log *zap.Logger

	rootCmd = &cobra.Command{
		Use:           "libradesk",
		Short:         "Loan desk for a small lending library",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(configPath); err != nil {
				return err
			}
			log = logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("LIBRADESK_CONFIG"), "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "base URL of a running libradesk server")

	rootCmd.AddCommand(serveCmd, migrateCmd, importCmd, exportCmd)
	rootCmd.AddCommand(borrowCmd, returnCmd, overdueCmd, statsCmd)
}

func defaultServerURL() string {
	if u := os.Getenv("LIBRADESK_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
