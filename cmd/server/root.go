package main

import (
	"github.com/spf13/cobra"

	"gigescrow/internal/config"
	"gigescrow/internal/logger"
)

var (
	RootCmd = &cobra.Command{
		Use:   "escrowd",
		Short: "Escrow settlement service for marketplace purchases",

		// All child commands will use this
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			conf, err = config.Load(cfgFile)
			if err != nil {
				return
			}
			if logLevel != "" {
				conf.LogLevel = logLevel
			}
			return logger.Init(conf.LogLevel)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	conf     *config.Config
	cfgFile  string
	logLevel string
)

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "overrides log_level from configuration")
}
