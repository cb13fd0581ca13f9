package bugzilla

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchBugs_Success(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		assert.Equal(t, "/rest/bug", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bugs": [
			{"id": 61234, "summary": "mod_ssl segfault", "product": "Apache httpd-2",
			 "component": "mod_ssl", "severity": "critical", "status": "NEW",
			 "is_open": true, "creation_time": "2017-06-01T10:00:00Z",
			 "creator_detail": {"email": "jane@apache.org", "real_name": "Jane Doe"},
			 "blocks": [61000], "depends_on": [], "see_also": []},
			{"id": 61235, "summary": "docs typo", "product": "Apache httpd-2",
			 "component": "documentation", "severity": "trivial", "status": "NEW",
			 "is_open": true, "creation_time": "2017-06-02T09:30:00Z"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/rest")
	bugs, err := client.FetchBugs(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, bugs, 2)

	assert.Equal(t, int64(61234), bugs[0].ID)
	assert.Equal(t, "mod_ssl segfault", bugs[0].Summary)
	assert.Equal(t, []int64{61000}, bugs[0].Blocks)
	require.NotNil(t, bugs[0].CreatorDetail)
	assert.Equal(t, "jane@apache.org", bugs[0].CreatorDetail.Email)

	// The default search terms should have been sent.
	assert.Equal(t, "__open__", gotQuery.Get("bug_status"))
	assert.Equal(t, "0", gotQuery.Get("limit"))
	assert.Equal(t, "priority,bug_severity", gotQuery.Get("order"))
	assert.Equal(t, "specific", gotQuery.Get("query_format"))
}

func TestFetchBugs_CallerParamsReplaceDefaults(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"bugs": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	bugs, err := client.FetchBugs(context.Background(), url.Values{"id": []string{"123"}})
	require.NoError(t, err)
	assert.Empty(t, bugs)

	assert.Equal(t, "123", gotQuery.Get("id"))
	assert.Empty(t, gotQuery.Get("bug_status"))
}

func TestFetchBugs_MissingBugsKey(t *testing.T) {
	body := `{"error": true, "message": "something went sideways"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchBugs(context.Background(), nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Equal(t, body, apiErr.Body)
}

func TestFetchBugs_UndecodableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>definitely not json</html>`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchBugs(context.Background(), nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "not json")
}

func TestFetchBugs_HTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchBugs(context.Background(), nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "maintenance")
}

func TestFetchBugs_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL)
	_, err := client.FetchBugs(ctx, nil)
	require.Error(t, err)

	// Transport failures are plain errors, not API errors.
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestFetchBug_Single(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "777" {
			_, _ = w.Write([]byte(`{"bugs": [{"id": 777, "summary": "one bug"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"bugs": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	bug, err := client.FetchBug(context.Background(), 777)
	require.NoError(t, err)
	require.NotNil(t, bug)
	assert.Equal(t, int64(777), bug.ID)

	missing, err := client.FetchBug(context.Background(), 778)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
