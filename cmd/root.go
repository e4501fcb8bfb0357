package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "pulsar",
	Short: "Resource-constrained roadmap scheduler",
	Long: "Pulsar schedules an engineering roadmap against resource availability:\n" +
		"it reads a YAML feature map and a TOML resource catalog, runs one of\n" +
		"four scheduling engines, and emits the dated plan.",
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

	rootCmd.PersistentFlags().String("config", "", "config file (default .pulsar.yaml)")
	rootCmd.PersistentFlags().String("roadmap", "", "roadmap file (default roadmap.yaml)")
	rootCmd.PersistentFlags().String("resources", "", "resource catalog (default resources.toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("roadmap_path", rootCmd.PersistentFlags().Lookup("roadmap"))
	_ = viper.BindPFlag("resource_path", rootCmd.PersistentFlags().Lookup("resources"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".pulsar")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("PULSAR")
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}
