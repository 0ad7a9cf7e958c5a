package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustnet/trustnet-cache/internal/api"
	"github.com/trustnet/trustnet-cache/internal/cache"
	"github.com/trustnet/trustnet-cache/internal/logging"
	"github.com/trustnet/trustnet-cache/internal/monitor"
	"github.com/trustnet/trustnet-cache/internal/querykey"
	"github.com/trustnet/trustnet-cache/internal/store"
	"github.com/trustnet/trustnet-cache/internal/strategies"
)

type serverEnv struct {
	cache   *cache.Service
	monitor *monitor.Monitor
}

// startServer runs a real admin router over a memory store and points the CLI at it
func startServer(t *testing.T, secret string) *serverEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var logger logrus.FieldLogger = logging.NewNop()
	svc := cache.NewService(store.NewMemoryStore(time.Minute), logger)
	mon := monitor.New(logger)

	srv := httptest.NewServer(api.NewRouter(&api.RouterConfig{
		Cache:      svc,
		Strategies: strategies.New(svc, logger),
		Monitor:    mon,
		Logger:     logger,
		Version:    "test",
		JWTSecret:  secret,
	}))
	t.Cleanup(srv.Close)

	viper.Set("server.url", srv.URL)
	viper.Set("client.retries", 0)
	return &serverEnv{cache: svc, monitor: mon}
}

// resetFlags restores every flag to its default; cobra keeps flag state
// between Execute calls on the same command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatsCommand(t *testing.T) {
	env := startServer(t, "")
	ctx := context.Background()
	require.True(t, env.cache.Set(ctx, "a", 1, 0))
	require.True(t, env.cache.Set(ctx, "b", 2, 0))

	out, err := run(t, "", "stats")
	require.NoError(t, err)
	assert.Regexp(t, `BACKEND\s+memory`, out)
	assert.Regexp(t, `KEYS\s+2`, out)
	assert.Contains(t, out, "redis_version")

	out, err = run(t, "", "stats", "-o", "json")
	require.NoError(t, err)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, string(store.BackendMemory), stats.Backend)
	assert.EqualValues(t, 2, stats.KeyCount)
}

func TestStatsCommandYAML(t *testing.T) {
	startServer(t, "")

	out, err := run(t, "", "stats", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: memory")
}

func TestGetCommand(t *testing.T) {
	env := startServer(t, "")
	require.True(t, env.cache.Set(context.Background(), "business:42", map[string]string{"name": "Acme"}, 0))

	out, err := run(t, "", "get", "business:42")
	require.NoError(t, err)
	var entry api.KeyResponse
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Equal(t, "business:42", entry.Key)
	assert.Equal(t, map[string]interface{}{"name": "Acme"}, entry.Value)

	require.True(t, env.cache.Set(context.Background(), "search:a/b", "x", 0))
	out, err = run(t, "", "get", "search:a/b", "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Equal(t, "search:a/b", entry.Key)

	_, err = run(t, "", "get", "business:missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEY_NOT_FOUND")
}

func TestInvalidateCommands(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		args    []string
		seed    []string
		gone    []string
		kept    []string
		summary string
	}{
		{
			name:    "pattern",
			args:    []string{"invalidate", "pattern", "search:*"},
			seed:    []string{"search:a", "search:b", "user:1"},
			gone:    []string{"search:a", "search:b"},
			kept:    []string{"user:1"},
			summary: "Invalidated search:*",
		},
		{
			name:    "business",
			args:    []string{"invalidate", "business", "42"},
			seed:    []string{"business:42", "business:42:details", "businesses:x", "search:y", "business:7"},
			gone:    []string{"business:42", "business:42:details", "businesses:x", "search:y"},
			kept:    []string{"business:7"},
			summary: "Invalidated business:42",
		},
		{
			name:    "user",
			args:    []string{"invalidate", "user", "9"},
			seed:    []string{"user:9", "businesses:x", "user:10"},
			gone:    []string{"user:9", "businesses:x"},
			kept:    []string{"user:10"},
			summary: "Invalidated user:9",
		},
		{
			name:    "business id with separators",
			args:    []string{"invalidate", "business", "acme/eu 1"},
			seed:    []string{"business:acme/eu 1", "business:acme/eu 1:detail", "business:acme"},
			gone:    []string{"business:acme/eu 1", "business:acme/eu 1:detail"},
			kept:    []string{"business:acme"},
			summary: "Invalidated business:acme/eu 1",
		},
		{
			name:    "user id with separators",
			args:    []string{"invalidate", "user", "a/b"},
			seed:    []string{"user:a/b", "user:a"},
			gone:    []string{"user:a/b"},
			kept:    []string{"user:a"},
			summary: "Invalidated user:a/b",
		},
		{
			name:    "all",
			args:    []string{"invalidate", "all"},
			seed:    []string{"user:9", "business:1"},
			gone:    []string{"user:9", "business:1"},
			summary: "Invalidated *",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := startServer(t, "")
			for _, key := range tt.seed {
				require.True(t, env.cache.Set(ctx, key, "v", 0))
			}

			out, err := run(t, "", tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.summary)

			for _, key := range tt.gone {
				assert.False(t, env.cache.Exists(ctx, key), key)
			}
			for _, key := range tt.kept {
				assert.True(t, env.cache.Exists(ctx, key), key)
			}
		})
	}
}

func TestInvalidateRejectsBadPattern(t *testing.T) {
	startServer(t, "")

	_, err := run(t, "", "invalidate", "pattern", "[abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_PATTERN")
}

func TestFlushRequiresConfirmation(t *testing.T) {
	env := startServer(t, "")
	ctx := context.Background()
	require.True(t, env.cache.Set(ctx, "a", 1, 0))

	_, err := run(t, "", "flush")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
	assert.True(t, env.cache.Exists(ctx, "a"))

	_, err = run(t, "", "flush", "--yes")
	require.NoError(t, err)
	assert.False(t, env.cache.Exists(ctx, "a"))
}

func TestQueriesCommand(t *testing.T) {
	env := startServer(t, "")

	out, err := run(t, "", "queries")
	require.NoError(t, err)
	assert.Contains(t, out, "No queries tracked")

	env.monitor.StartTracking("business.findMany")()
	env.monitor.StartTracking("business.findMany")()
	env.monitor.StartTracking("user.findUnique")()

	out, err = run(t, "", "queries", "-o", "json")
	require.NoError(t, err)
	var rows []queryStatRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	counts := map[string]int64{}
	for _, r := range rows {
		counts[r.Query] = r.Count
	}
	assert.Equal(t, map[string]int64{"business.findMany": 2, "user.findUnique": 1}, counts)

	out, err = run(t, "", "queries", "--reset")
	require.NoError(t, err)
	assert.Contains(t, out, "QUERY")
	assert.Empty(t, env.monitor.Stats())
}

func TestKeyCommand(t *testing.T) {
	out, err := run(t, "", "key", "businesses", "--filter", "city=Lisbon", "-f", "verified=true", "--page", "2", "--limit", "20")
	require.NoError(t, err)

	want := querykey.Generate("businesses",
		map[string]interface{}{"city": "Lisbon", "verified": true},
		&querykey.Pagination{Page: 2, Limit: 20})
	assert.Equal(t, want+"\n", out)

	out, err = run(t, "", "key", "businesses")
	require.NoError(t, err)
	assert.Equal(t, querykey.Generate("businesses", nil, nil)+"\n", out)
}

func TestKeyCommandRejectsMalformedFilter(t *testing.T) {
	_, err := run(t, "", "key", "businesses", "--filter", "city")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")
}

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters([]string{"rating=4", "verified=false", "city=Lisbon", "tags=[\"a\",\"b\"]", "note="})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"rating":   float64(4),
		"verified": false,
		"city":     "Lisbon",
		"tags":     []interface{}{"a", "b"},
		"note":     "",
	}, filters)

	_, err = parseFilters([]string{"=x"})
	assert.Error(t, err)
}

func TestAnalyzeCommand(t *testing.T) {
	query := `{"include":["reviews","owner"],"skip":5000}`

	out, err := run(t, query, "analyze", "-o", "json")
	require.NoError(t, err)

	var result querykey.Complexity
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, querykey.Analyze(querykey.Query{Include: []string{"reviews", "owner"}, Skip: 5000}), result)

	out, err = run(t, query, "analyze", "-")
	require.NoError(t, err)
	assert.Regexp(t, `COMPLEXITY\s+40`, out)
	assert.Contains(t, out, "offset pagination skips 5000 rows")

	_, err = run(t, "not json", "analyze")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	const secret = "cli-test-secret"
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ADMIN_JWT_SECRET", secret)

	out, err := run(t, "", "token", "--subject", "ops", "--ttl", "5m", "-o", "json")
	require.NoError(t, err)
	var issued map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	assert.Equal(t, "ops", issued["subject"])
	require.NotEmpty(t, issued["token"])

	startServer(t, secret)

	_, err = run(t, "", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING_AUTH")

	_, err = run(t, "", "stats", "--token", issued["token"])
	require.NoError(t, err)

	_, err = run(t, "", "stats", "--token", "garbage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_TOKEN")
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ADMIN_JWT_SECRET", "")

	_, err := run(t, "", "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no admin JWT secret")
}

func TestUnreachableServer(t *testing.T) {
	viper.Set("server.url", "http://127.0.0.1:1")
	viper.Set("client.retries", 0)

	_, err := run(t, "", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}
