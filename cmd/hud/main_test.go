package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"hud-backend/pkg/config"
	"hud-backend/pkg/docstore"
)

func setupLocalEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"VERCEL_ENV", "VERCEL_URL", "AWS_LAMBDA_FUNCTION_NAME", "POSTGRES_DSN", "SUPABASE_URL", "SUPABASE_SERVICE_KEY", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("USE_LOCAL_DB", "true")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("JWT_SECRET", "test-secret")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-dir", t.TempDir()}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, "", args...)
	if err != nil {
		t.Fatalf("hud %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestUsersAddAndList(t *testing.T) {
	setupLocalEnv(t)

	uid := strings.TrimSpace(mustRun(t, "users", "add", "a@example.com", "--password", "pw"))
	if uid == "" {
		t.Fatal("expected uid")
	}
	out, err := run(t, "pw2\n", "users", "add", "b@example.com", "--password-stdin")
	if err != nil || strings.TrimSpace(out) == "" {
		t.Fatalf("add from stdin: %v %q", err, out)
	}

	list := mustRun(t, "users", "list")
	if !strings.Contains(list, uid+"\ta@example.com") || !strings.Contains(list, "b@example.com") {
		t.Fatalf("unexpected list %q", list)
	}

	if _, err := run(t, "", "users", "add", "A@example.com", "--password", "x"); err == nil {
		t.Fatal("expected duplicate email error")
	}
	if _, err := run(t, "", "users", "add", "c@example.com"); err == nil {
		t.Fatal("expected missing password error")
	}
}

func TestTabsCommands(t *testing.T) {
	setupLocalEnv(t)
	mustRun(t, "users", "add", "a@example.com", "--password", "pw")

	var ids []string
	for _, label := range []string{"A", "B", "C"} {
		ids = append(ids, strings.TrimSpace(mustRun(t, "tabs", "-u", "a@example.com", "add", label)))
	}

	out := mustRun(t, "tabs", "-u", "a@example.com", "move", ids[2], ids[0])
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("unexpected move output %q", out)
	}
	for i, want := range []string{"C", "A", "B"} {
		if !strings.HasSuffix(lines[i], "\t"+want) {
			t.Errorf("line %d = %q, want label %s", i, lines[i], want)
		}
	}

	mustRun(t, "tabs", "-u", "a@example.com", "rename", ids[1], "Bee")
	mustRun(t, "tabs", "-u", "a@example.com", "rm", ids[0])

	list := mustRun(t, "tabs", "-u", "a@example.com", "list")
	if strings.Contains(list, ids[0]) || !strings.Contains(list, "Bee") {
		t.Fatalf("unexpected list %q", list)
	}
	if !strings.HasPrefix(list, "* ") {
		t.Errorf("first tab should be active: %q", list)
	}
}

func TestTabsUnknownUser(t *testing.T) {
	setupLocalEnv(t)
	if _, err := run(t, "", "tabs", "-u", "nobody@example.com", "list"); err == nil {
		t.Fatal("expected unknown user error")
	}
}

func TestMigratePrint(t *testing.T) {
	out := mustRun(t, "migrate", "--print")
	if !strings.Contains(out, "CREATE TABLE IF NOT EXISTS documents") {
		t.Fatalf("unexpected schema output %q", out)
	}
}

func TestMigrateRequiresDSN(t *testing.T) {
	setupLocalEnv(t)
	if _, err := run(t, "", "migrate"); err == nil {
		t.Fatal("expected error without POSTGRES_DSN")
	}
}

func TestSetupLoggerProductionJSON(t *testing.T) {
	logger := logrus.New()
	setupLogger(logger, &config.Config{Environment: "production"})
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.Info("hello")
	if !strings.Contains(buf.String(), `"severity":"info"`) || !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Fatalf("unexpected log line %q", buf.String())
	}
}

func TestRunServerStopsOnCancel(t *testing.T) {
	t.Cleanup(func() { _ = docstore.ClosePool() })
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv, logger, nil) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
