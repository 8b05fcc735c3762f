// Package cli wires the vendfleet commands.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vendfleet",
	Short: "Vending machine fleet orchestrator",
	Long: `vendfleet coordinates a fleet of vending machines and a shared product
inventory. The serve command runs the orchestrator HTTP service; the
machines and products commands administer the fleet directly.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default vendfleet.yaml in the working directory)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("vendfleet")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("VENDFLEET")
	viper.AutomaticEnv()

	// Config file is optional; env vars and defaults cover everything.
	_ = viper.ReadInConfig()
}
