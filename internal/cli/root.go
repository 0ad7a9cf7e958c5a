package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is reported by --version and the health endpoint
var Version = "0.1.0"

var (
	cfgFile string
	output  string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trustnet-cache",
	Short: "TrustNet cache service and administration tool",
	Long: `trustnet-cache runs the TrustNet caching layer's admin server and talks to it.

Commands fall into three groups:
- serve runs the admin HTTP server over the configured cache store
- stats, get, invalidate, flush and queries call a running server
- key, analyze and token work locally without a server`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "CLI config file (default is $HOME/.trustnet-cache.yaml)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (json, yaml, table)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("server", "", "admin server URL (default http://127.0.0.1:8090)")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the admin server")

	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("auth.token", rootCmd.PersistentFlags().Lookup("token"))

	viper.SetDefault("server.url", "http://127.0.0.1:8090")
	viper.SetDefault("client.timeout", 10)
	viper.SetDefault("client.retries", 2)
}

// initConfig reads in config file and TRUSTNET_ environment variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".trustnet-cache")
	}

	viper.SetEnvPrefix("TRUSTNET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
