package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wbcard-cli/internal/store"
	"github.com/sells-group/wbcard-cli/internal/wbtest"
)

// cli runs the real command tree against a fake backend and a temporary
// SQLite store.
type cli struct {
	t      *testing.T
	srv    *wbtest.Server
	dbPath string
	stdin  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	srv := wbtest.New()
	t.Cleanup(srv.Close)

	dbPath := filepath.Join(t.TempDir(), "wbcard.db")
	t.Setenv("WBCARD_API_BASE_URL", srv.URL)
	t.Setenv("WBCARD_API_RATE_PER_SEC", "0")
	t.Setenv("WBCARD_API_RETRY_MAX_ATTEMPTS", "1")
	t.Setenv("WBCARD_STREAM_IDLE_TIMEOUT_SECS", "10")
	t.Setenv("WBCARD_STORE_DRIVER", "sqlite")
	t.Setenv("WBCARD_STORE_DATABASE_URL", dbPath)
	t.Setenv("WBCARD_LOG_LEVEL", "error")
	t.Setenv("WBCARD_OUTPUT_COLOR", "never")

	return &cli{t: t, srv: srv, dbPath: dbPath}
}

// run executes one command line and returns stdout and stderr.
func (c *cli) run(args ...string) (string, string, error) {
	c.t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(c.stdin))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// mustRun fails the test when the command fails.
func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, errOut, err := c.run(args...)
	require.NoError(c.t, err, "wbcard %s\nstdout:\n%s\nstderr:\n%s", strings.Join(args, " "), out, errOut)
	return out
}

func (c *cli) login() {
	c.t.Helper()
	c.mustRun("login", "-u", "manager", "-p", "secret")
}

// openStore opens the CLI's database for assertions.
func (c *cli) openStore() *store.SQLiteStore {
	c.t.Helper()
	st, err := store.NewSQLite(c.dbPath)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

// resetFlags restores every flag to its default; cobra keeps parsed values
// on the package-level commands between executions.
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
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

var resultStream = wbtest.Stream(
	map[string]any{"type": "log", "message": "Получение карточки"},
	map[string]any{"type": "log", "message": "Генерация заголовка"},
	map[string]any{"type": "result", "payload": resultPayload},
	"[DONE]",
)

var resultPayload = map[string]any{
	"nmID":                1001,
	"subjectID":           55,
	"old_title":           "Платье",
	"new_title":           "Платье летнее",
	"old_description":     "Старое описание",
	"new_description":     "Новое описание",
	"validation_score":    92,
	"old_characteristics": []map[string]any{{"name": "Цвет", "value": "Красный"}},
	"new_characteristics": []map[string]any{{"name": "Цвет", "value": "Синий"}, {"name": "Материал", "value": []string{"Хлопок", "Лён"}}},
	"photo_urls":          []string{"https://cdn.example/1.jpg"},
}

const currentCard = `{
	"nmID": 1001,
	"vendorCode": "ART-1",
	"brand": "Бренд",
	"title": "Платье",
	"subjectID": 55,
	"characteristics": [
		{"id": 14177449, "name": "Цвет", "value": ["Красный"]},
		{"id": 14177450, "name": "Материал", "value": ["Вискоза"]}
	],
	"photos": [{"big": "https://cdn.example/1.jpg"}],
	"dimensions": {"length": 30, "width": 20, "height": 5, "weightBrutto": 0.4},
	"sizes": [{"chrtID": 1, "techSize": "42", "skus": ["2000000000011"]}]
}`
