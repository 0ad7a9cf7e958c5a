package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trustnet/trustnet-cache/internal/querykey"
)

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Show tracked query statistics",
	Long:  "Display per-query invocation counts and latency, slowest average first",
	Args:  cobra.NoArgs,
	RunE:  runQueries,
}

var keyCmd = &cobra.Command{
	Use:   "key <resource>",
	Short: "Derive the cache key for a resource and filters",
	Long: `Derive the cache key the service uses for a resource, filter set and page.

Filter values are parsed as JSON when possible, so --filter verified=true and
--filter rating=4 produce a boolean and a number; anything else is a string.`,
	Example: "  trustnet-cache key businesses --filter city=Lisbon --filter verified=true --page 1 --limit 20",
	Args:    cobra.ExactArgs(1),
	RunE:    runKey,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file|-]",
	Short: "Score a query's relative cost",
	Long:  "Read a JSON query description from a file or stdin and report its complexity score and warnings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

// queryStatRow is the wire form of a monitor.QueryStat
type queryStatRow struct {
	Query       string  `json:"query" yaml:"query"`
	Count       int64   `json:"count" yaml:"count"`
	TotalTimeMs float64 `json:"totalTimeMs" yaml:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs" yaml:"avgTimeMs"`
}

func init() {
	rootCmd.AddCommand(queriesCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(analyzeCmd)

	queriesCmd.Flags().Bool("reset", false, "clear the statistics after printing them")

	keyCmd.Flags().StringArrayP("filter", "f", nil, "filter as key=value (repeatable)")
	keyCmd.Flags().Int("page", 0, "page number")
	keyCmd.Flags().Int("limit", 0, "page size")
}

func runQueries(cmd *cobra.Command, args []string) error {
	client, err := NewClient()
	if err != nil {
		return err
	}

	var stats []queryStatRow
	if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/queries/stats", nil, &stats); err != nil {
		return fmt.Errorf("failed to get query stats: %w", err)
	}

	err = NewPrinter(cmd.OutOrStdout()).Print(stats, func(w io.Writer) {
		if len(stats) == 0 {
			fmt.Fprintln(w, "No queries tracked")
			return
		}
		fmt.Fprintln(w, "QUERY\tCOUNT\tAVG (ms)\tTOTAL (ms)")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\n", s.Query, s.Count, s.AvgTimeMs, s.TotalTimeMs)
		}
	})
	if err != nil {
		return err
	}

	if reset, _ := cmd.Flags().GetBool("reset"); reset {
		if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/queries/reset", nil, nil); err != nil {
			return fmt.Errorf("failed to reset query stats: %w", err)
		}
	}
	return nil
}

func runKey(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetStringArray("filter")
	filters, err := parseFilters(raw)
	if err != nil {
		return err
	}

	var page *querykey.Pagination
	if cmd.Flags().Changed("page") || cmd.Flags().Changed("limit") {
		p, _ := cmd.Flags().GetInt("page")
		l, _ := cmd.Flags().GetInt("limit")
		page = &querykey.Pagination{Page: p, Limit: l}
	}

	key := querykey.Generate(args[0], filters, page)
	return NewPrinter(cmd.OutOrStdout()).Print(map[string]string{"key": key}, func(w io.Writer) {
		fmt.Fprintln(w, key)
	})
}

func parseFilters(raw []string) (map[string]interface{}, error) {
	filters := make(map[string]interface{}, len(raw))
	for _, pair := range raw {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		filters[name] = decoded
	}
	return filters, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open query file: %w", err)
		}
		defer f.Close()
		in = f
	}

	var q querykey.Query
	if err := json.NewDecoder(in).Decode(&q); err != nil {
		return fmt.Errorf("failed to parse query: %w", err)
	}

	result := querykey.Analyze(q)
	return NewPrinter(cmd.OutOrStdout()).Print(result, func(w io.Writer) {
		fmt.Fprintf(w, "COMPLEXITY\t%d\n", result.Score)
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "WARNING\t%s\n", warning)
		}
	})
}
