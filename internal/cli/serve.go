package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trustnet/trustnet-cache/internal/api"
	"github.com/trustnet/trustnet-cache/internal/config"
	"github.com/trustnet/trustnet-cache/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache admin server",
	Long: `Run the admin HTTP server over the configured cache store.

The server config file is taken from --server-config or CONFIG_PATH. Environment
variables such as REDIS_URL and UPSTASH_REDIS_TOKEN override the file.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("server-config", "", "server config file (default $CONFIG_PATH)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(cfg, logger, Version)
	return server.Run(ctx)
}

// loadServerConfig loads the server-side configuration used by serve and token
func loadServerConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("server-config")
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
