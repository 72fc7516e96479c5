package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/tsawler/trainchart/config"
	"github.com/tsawler/trainchart/logging"
)

var (
	cfgFile  string
	logLevel string

	cfg    config.Config
	logger log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trainchart",
	Short: "Chart training and validation metrics of ML training runs",
	Long: `trainchart turns per-epoch training histories (Keras history JSON or
TensorBoard event logs) into accuracy and loss charts.

Examples:
  trainchart serve --config trainchart.yaml
  trainchart render runs/baseline.json --format html -o baseline.html
  trainchart render runs/baseline --format png --metric loss -o loss.png
  trainchart inspect runs/baseline
  trainchart demo runs --run demo --epochs 20`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger, err = logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
