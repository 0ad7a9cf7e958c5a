package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/spf13/cobra"

	"github.com/trustnet/trustnet-cache/internal/api"
	"github.com/trustnet/trustnet-cache/internal/cache"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Long:  "Display key count, memory usage and server info reported by the cache store",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show a cached value",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Invalidate cached entries",
	Long:  "Remove cached entries by pattern or by the business/user fan-out rules",
}

var invalidatePatternCmd = &cobra.Command{
	Use:   "pattern <glob>",
	Short: "Invalidate every key matching a glob pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInvalidate(cmd, "/api/v1/cache/invalidate", api.InvalidateRequest{Pattern: args[0]})
	},
}

var invalidateBusinessCmd = &cobra.Command{
	Use:   "business <id>",
	Short: "Invalidate a business, every listing and every search result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInvalidate(cmd, "/api/v1/cache/invalidate/business/"+url.PathEscape(args[0]), nil)
	},
}

var invalidateUserCmd = &cobra.Command{
	Use:   "user <id>",
	Short: "Invalidate a user and every listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInvalidate(cmd, "/api/v1/cache/invalidate/user/"+url.PathEscape(args[0]), nil)
	},
}

var invalidateAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Invalidate every key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInvalidate(cmd, "/api/v1/cache/invalidate", api.InvalidateRequest{Pattern: "*"})
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Remove every key from the cache store",
	Args:  cobra.NoArgs,
	RunE:  runFlush,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(flushCmd)

	invalidateCmd.AddCommand(invalidatePatternCmd)
	invalidateCmd.AddCommand(invalidateBusinessCmd)
	invalidateCmd.AddCommand(invalidateUserCmd)
	invalidateCmd.AddCommand(invalidateAllCmd)

	flushCmd.Flags().Bool("yes", false, "confirm flushing the whole store")
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := NewClient()
	if err != nil {
		return err
	}

	var stats cache.Stats
	if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/cache/stats", nil, &stats); err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	return NewPrinter(cmd.OutOrStdout()).Print(stats, func(w io.Writer) {
		fmt.Fprintf(w, "BACKEND\t%s\n", stats.Backend)
		fmt.Fprintf(w, "KEYS\t%d\n", stats.KeyCount)
		fmt.Fprintf(w, "MEMORY\t%s\n", stats.MemoryUsage)

		fields := make([]string, 0, len(stats.ServerInfo))
		for field := range stats.ServerInfo {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(w, "%s\t%s\n", field, stats.ServerInfo[field])
		}
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := NewClient()
	if err != nil {
		return err
	}

	var entry api.KeyResponse
	if err := client.do(cmd.Context(), http.MethodGet, keyPath(args[0]), nil, &entry); err != nil {
		return fmt.Errorf("failed to get %s: %w", args[0], err)
	}

	return NewPrinter(cmd.OutOrStdout()).Print(entry, nil)
}

func runInvalidate(cmd *cobra.Command, path string, body interface{}) error {
	client, err := NewClient()
	if err != nil {
		return err
	}

	var result api.InvalidateResponse
	if err := client.do(cmd.Context(), http.MethodPost, path, body, &result); err != nil {
		return fmt.Errorf("invalidation failed: %w", err)
	}

	return NewPrinter(cmd.OutOrStdout()).Print(result, func(w io.Writer) {
		fmt.Fprintf(w, "Invalidated %s\n", result.Target)
	})
}

func runFlush(cmd *cobra.Command, args []string) error {
	confirmed, _ := cmd.Flags().GetBool("yes")
	if !confirmed {
		return errors.New("flush removes every key in the store; pass --yes to confirm")
	}
	return runInvalidate(cmd, "/api/v1/cache/flush", nil)
}
