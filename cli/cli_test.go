package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicsync-admin/assignment"
	"civicsync-admin/config"
	"civicsync-admin/logging"
	"civicsync-admin/logging/logtest"
	"civicsync-admin/store"
)

func testConfig() config.Config {
	return config.Config{
		Port:              "0",
		StoreBackend:      config.BackendMemory,
		AssignQueuePrefix: "assign_limit",
		AssignLimitPerDay: 50,
		JWTSecret:         "cli-secret",
		TokenTTL:          time.Hour,
		AdminEmail:        "admin@city.gov",
		AdminPassword:     "admin-pass",
		ReconcilePolicy:   "report",
		LogLevel:          "error",
	}
}

func seededStore(t *testing.T) *store.Memory {
	t.Helper()

	mem := store.NewMemory()
	require.NoError(t, mem.Load(store.ComplaintsPath, map[string]any{
		"GBG-001": map[string]any{"status": "new", "assignedTo": "GBG-834001-001"},
		"SLT-002": map[string]any{"status": "completed", "assignedTo": ""},
		"RDG-003": map[string]any{"status": "Pending", "assignedTo": ""},
	}))
	require.NoError(t, mem.Load(store.WorkersPath, map[string]any{
		"GBG-834001-001": map[string]any{
			"name": "Rajesh", "department": "garbage", "pincode": "834001",
			"assignedIssueId": "", "department_pincode": "garbage_834001",
		},
	}))

	return mem
}

func runCommand(t *testing.T, mem *store.Memory, args ...string) (string, error) {
	t.Helper()

	opts := &RootOptions{
		loadConfig: func() (config.Config, error) { return testConfig(), nil },
		openStore: func(context.Context, config.Config, logging.Logger) (store.Store, func(), error) {
			return mem, func() {}, nil
		},
	}

	out := &bytes.Buffer{}
	cmd := newRootCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestReconcileReportOnly(t *testing.T) {
	mem := seededStore(t)

	out, err := runCommand(t, mem, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "Scanned 3 issues and 1 workers (policy report)")
	assert.Contains(t, out, "issue_only")

	snap, err := mem.Get(context.Background(), store.WorkerPath("GBG-834001-001"))
	require.NoError(t, err)
	assert.Equal(t, "", snap.Map()["assignedIssueId"], "report policy never writes")
}

func TestReconcileRepairJSON(t *testing.T) {
	mem := seededStore(t)

	out, err := runCommand(t, mem, "reconcile", "--policy", "issue-wins", "--format", "json")
	require.NoError(t, err)

	var report assignment.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, assignment.PolicyIssueWins, report.Policy)
	require.Len(t, report.Actions, 1)
	assert.True(t, report.Actions[0].Applied)

	out, err = runCommand(t, mem, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "All assignments consistent")
}

func TestReconcileUnknownPolicy(t *testing.T) {
	_, err := runCommand(t, seededStore(t), "reconcile", "--policy", "coin-flip")
	assert.ErrorIs(t, err, assignment.ErrUnknownPolicy)
}

func TestMigrateStatuses(t *testing.T) {
	mem := seededStore(t)

	out, err := runCommand(t, mem, "migrate-statuses")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated 2 issue status(es)")

	out, err = runCommand(t, mem, "migrate-statuses", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"migrated":0}`, out)
}

func TestCreateWorker(t *testing.T) {
	mem := seededStore(t)

	out, err := runCommand(t, mem, "create-worker",
		"--name", "Asha", "--phone", "9876543210", "--department", "garbage", "--pincode", "834001")
	require.NoError(t, err)
	assert.Contains(t, out, "Created worker GBG-834001-002 (Asha)")

	_, err = runCommand(t, mem, "create-worker", "--name", "Asha", "--phone", "123")
	assert.Error(t, err)
}

func TestCreateHead(t *testing.T) {
	mem := seededStore(t)

	out, err := runCommand(t, mem, "create-head",
		"--email", "water@city.gov", "--password", "secret1", "--department", "water")
	require.NoError(t, err)
	assert.Contains(t, out, "Created department head WTR001 for Water")
}

func TestInvalidFormat(t *testing.T) {
	_, err := runCommand(t, seededStore(t), "reconcile", "--format", "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestNewServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mem := seededStore(t)

	app, err := newServer(context.Background(), testConfig(), mem, logtest.New(t), nil)
	require.NoError(t, err)
	defer app.issues.Unsubscribe()

	assert.True(t, app.issues.Subscribed())
	assert.Len(t, app.issues.All(), 3)

	w := httptest.NewRecorder()
	app.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/issues", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w = httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewServerRejectsUnknownPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.ReconcilePolicy = "coin-flip"

	_, err := newServer(context.Background(), cfg, seededStore(t), logtest.New(t), nil)
	assert.ErrorIs(t, err, assignment.ErrUnknownPolicy)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.ReconcileInterval = 10 * time.Millisecond

	app, err := newServer(context.Background(), cfg, seededStore(t), logtest.New(t), nil)
	require.NoError(t, err)
	defer app.issues.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.run(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
