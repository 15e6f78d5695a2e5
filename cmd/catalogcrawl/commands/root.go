// Package commands implements the CLI commands for catalogcrawl.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/catalogcrawl/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "catalogcrawl",
	Short: "Config-driven product catalog crawler",
	Long: `Catalogcrawl walks the category listings of e-commerce sites and
extracts one record per product (or per product option) using the CSS
and XPath selectors declared in a site configuration file.

Examples:
  # Crawl every site in the file
  catalogcrawl crawl -s sites.yaml -o products.json

  # One file per domain, crash-safe
  catalogcrawl crawl -s sites.yaml -o products.yaml --partition domain

  # Check a configuration without crawling
  catalogcrawl validate -s sites.yaml`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.catalogcrawl.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "suppress progress output")
	flags.Bool("log-json", false, "emit logs as JSON")
	flags.StringP("sites", "s", "", "site configuration file (YAML or JSON)")
	flags.StringSlice("site", nil, "only use the named sites (repeatable)")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("log_json", flags.Lookup("log-json"))
	_ = viper.BindPFlag("sites", flags.Lookup("sites"))
	_ = viper.BindPFlag("site", flags.Lookup("site"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".catalogcrawl")
		viper.SetConfigType("yaml")
	}

	// Environment variables: relay.api_key -> CATALOGCRAWL_RELAY_API_KEY
	viper.SetEnvPrefix("CATALOGCRAWL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("relay.api_key", "CATALOGCRAWL_RELAY_API_KEY", "SCRAPERAPI_KEY")

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initLogger() {
	level := "info"
	if viper.GetBool("debug") {
		level = "debug"
	}
	logger.Init(logger.Options{
		Level: level,
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("log_json"),
	})
	if f := viper.ConfigFileUsed(); f != "" {
		logger.Debug("using config file", "path", f)
	}
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
