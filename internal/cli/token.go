package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/trustnet/trustnet-cache/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin API bearer token",
	Long: `Sign a bearer token with the admin JWT secret.

The secret comes from the server config file (--server-config or CONFIG_PATH)
or ADMIN_JWT_SECRET.`,
	Example: "  export TRUSTNET_AUTH_TOKEN=$(trustnet-cache token --subject ops -o json | jq -r .token)",
	Args:    cobra.NoArgs,
	RunE:    runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("server-config", "", "server config file (default $CONFIG_PATH)")
	tokenCmd.Flags().String("subject", "admin", "token subject")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Admin.JWTSecret == "" {
		return errors.New("no admin JWT secret configured; set admin.jwt_secret or ADMIN_JWT_SECRET")
	}

	subject, _ := cmd.Flags().GetString("subject")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	token, err := api.IssueToken(cfg.Admin.JWTSecret, subject, ttl)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	expires := time.Now().Add(ttl).UTC().Format(time.RFC3339)
	return NewPrinter(cmd.OutOrStdout()).Print(map[string]string{
		"token":     token,
		"subject":   subject,
		"expiresAt": expires,
	}, func(w io.Writer) {
		fmt.Fprintln(w, token)
	})
}
