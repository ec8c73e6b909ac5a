package main

import (
	"fmt"
	"os"

	"github.com/edgeflare/threatflow/pkg/config"
	"github.com/edgeflare/threatflow/pkg/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// Register built-in connectors
	_ "github.com/edgeflare/threatflow/pkg/stream/kafka"
	_ "github.com/edgeflare/threatflow/pkg/stream/nats"
)

var (
	cfgFile  string
	logLevel string
	v        = config.New()
	cfg      *config.Config
	logger   = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "threatflow",
	Short: "threatflow moves threat intelligence from OTX into PostgreSQL",
	Long: `threatflow polls the AlienVault OTX pulse feed, streams raw and enriched
records through a message broker and persists them into PostgreSQL.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Println(config.Version)
			return
		}

		// If no subcommand is provided, print help
		cmd.Help()
	},
}

func Main() {
	defer func() { _ = logger.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/threatflow.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, fatal, none)")
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Print the version number")
	rootCmd.PersistentFlags().Bool("metrics", false, "Enable Prometheus metrics server")
	rootCmd.PersistentFlags().String("metrics-addr", ":9100", "Prometheus metrics server address")

	mustBind("metrics.enabled", "metrics")
	mustBind("metrics.addr", "metrics-addr")

	rootCmd.AddCommand(produceCmd, enrichCmd, consumeCmd)
}

func mustBind(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("binding flag %q: %v", flag, err))
	}
}

func initConfig() {
	var err error
	logger, err = util.NewLogger(logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error creating logger:", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	cfg, err = config.Load(v, cfgFile)
	if err != nil {
		logger.Fatal("error loading config", zap.Error(err))
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Info("using config file", zap.String("path", used))
	}
}
