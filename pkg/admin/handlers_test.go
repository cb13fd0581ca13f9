package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/bugzilla"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/ingest"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/store"
	syncpkg "github.com/noodlebreak/apache-bugzilla-fetcher/pkg/sync"
)

type testEnv struct {
	store    *store.Store
	ingester *ingest.Ingester
	runs     *syncpkg.RunStore
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := store.New(db)
	require.NoError(t, s.AutoMigrate())
	runs := syncpkg.NewRunStore(db)
	require.NoError(t, runs.AutoMigrate())

	srv := httptest.NewServer(Router(s, runs, nil))
	t.Cleanup(srv.Close)

	return &testEnv{
		store:    s,
		ingester: ingest.New(s, nil),
		runs:     runs,
		server:   srv,
	}
}

func (env *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(env.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func (env *testEnv) ingestBug(t *testing.T, bzID int64, status, severity string) {
	t.Helper()
	rec := bugzilla.Bug{
		ID:              bzID,
		Summary:         "mod_rewrite loops on trailing slash",
		Component:       "mod_rewrite",
		Product:         "Apache httpd-2",
		Severity:        severity,
		Status:          status,
		TargetMilestone: "---",
		Priority:        "P3",
		CreatorDetail:   &bugzilla.UserDetail{Email: "reporter@apache.org", RealName: "Rewrite Reporter"},
		Keywords:        []string{"loop"},
		Blocks:          []int64{bzID + 1},
		CreationTime:    time.Date(2016, 11, 2, 8, 30, 0, 0, time.UTC),
		IsOpen:          status == "NEW",
	}
	_, err := env.ingester.CreateBug(&rec)
	require.NoError(t, err)
}

func TestListBugs(t *testing.T) {
	env := newTestEnv(t)
	env.ingestBug(t, 60001, "NEW", "normal")
	env.ingestBug(t, 60002, "RESOLVED", "critical")

	resp, body := env.get(t, "/api/v1/bugs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	bugs := body["bugs"].([]any)
	require.Len(t, bugs, 2)

	first := bugs[0].(map[string]any)
	assert.Equal(t, float64(60001), first["bzId"])
	assert.Equal(t, "mod_rewrite", first["component"])
	assert.Equal(t, "Apache httpd-2", first["product"])

	resp, body = env.get(t, "/api/v1/bugs?status=RESOLVED")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	bugs = body["bugs"].([]any)
	require.Len(t, bugs, 1)
	assert.Equal(t, float64(60002), bugs[0].(map[string]any)["bzId"])

	resp, _ = env.get(t, "/api/v1/bugs?open=maybe")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetBug(t *testing.T) {
	env := newTestEnv(t)
	env.ingestBug(t, 60001, "NEW", "normal")

	resp, body := env.get(t, "/api/v1/bugs/60001")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mod_rewrite loops on trailing slash", body["summary"])
	assert.Equal(t, "P3", body["priority"])

	creator := body["creator"].(map[string]any)
	assert.Equal(t, "reporter@apache.org", creator["email"])
	assert.Equal(t, "Rewrite", creator["firstName"])

	keywords := body["keywords"].([]any)
	require.Len(t, keywords, 1)
	assert.Equal(t, "loop", keywords[0])

	blocks := body["blocks"].([]any)
	require.Len(t, blocks, 1)
	edge := blocks[0].(map[string]any)
	assert.Equal(t, float64(60002), edge["toBzId"])
	assert.Equal(t, false, edge["resolved"])

	resp, _ = env.get(t, "/api/v1/bugs/99999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.get(t, "/api/v1/bugs/not-a-number")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListLookups(t *testing.T) {
	env := newTestEnv(t)
	env.ingestBug(t, 60001, "NEW", "normal")
	env.ingestBug(t, 60002, "RESOLVED", "critical")

	resp, body := env.get(t, "/api/v1/severities")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 2)

	// Ingesting two bugs with the same status produces one row.
	resp, body = env.get(t, "/api/v1/products")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	items = body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Apache httpd-2", items[0].(map[string]any)["name"])
}

func TestGetLookup(t *testing.T) {
	env := newTestEnv(t)
	env.ingestBug(t, 60001, "NEW", "normal")

	resp, body := env.get(t, "/api/v1/statuses/1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "NEW", body["name"])

	resp, _ = env.get(t, "/api/v1/statuses/42")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRenameLookup(t *testing.T) {
	env := newTestEnv(t)
	env.ingestBug(t, 60001, "NEW", "normal")

	req, err := http.NewRequest(http.MethodPatch,
		env.server.URL+"/api/v1/statuses/1", strings.NewReader(`{"name":"OPEN"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "OPEN", body["name"])

	// The rename is visible through the bug surface too.
	_, bug := env.get(t, "/api/v1/bugs/60001")
	assert.Equal(t, "OPEN", bug["status"])

	// Empty name is rejected.
	req, err = http.NewRequest(http.MethodPatch,
		env.server.URL+"/api/v1/statuses/1", strings.NewReader(`{"name":""}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListComponents(t *testing.T) {
	env := newTestEnv(t)
	env.ingestBug(t, 60001, "NEW", "normal")

	resp, body := env.get(t, "/api/v1/components?product=Apache+httpd-2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "mod_rewrite", item["name"])
	assert.Equal(t, "Apache httpd-2", item["product"])

	resp, body = env.get(t, "/api/v1/components?product=Tomcat")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["items"])
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t)
	env.ingestBug(t, 60001, "NEW", "normal")

	resp, body := env.get(t, "/api/v1/users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	user := items[0].(map[string]any)
	assert.Equal(t, "reporter@apache.org", user["email"])

	resp, body = env.get(t, "/api/v1/users/1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reporter@apache.org", body["email"])

	resp, _ = env.get(t, "/api/v1/users/42")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSyncRunEndpoints(t *testing.T) {
	env := newTestEnv(t)

	run, err := env.runs.Begin(syncpkg.TriggerScheduled)
	require.NoError(t, err)
	require.NoError(t, env.runs.Complete(run.ID, syncpkg.Counts{Fetched: 3, Created: 3}))

	resp, body := env.get(t, "/api/v1/sync/runs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	runs := body["runs"].([]any)
	require.Len(t, runs, 1)
	item := runs[0].(map[string]any)
	assert.Equal(t, run.ID, item["id"])
	assert.Equal(t, "succeeded", item["state"])
	assert.Equal(t, float64(3), item["bugsFetched"])

	resp, body = env.get(t, "/api/v1/sync/runs/"+run.ID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "scheduled", body["trigger"])

	resp, _ = env.get(t, "/api/v1/sync/runs/not-a-run")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTriggerWithoutWorker(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/api/v1/sync/runs:trigger", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
