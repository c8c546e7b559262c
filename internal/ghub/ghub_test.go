package ghub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/repositories", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		require.Equal(t, "agent framework language:go", r.URL.Query().Get("q"))
		require.Equal(t, "stars", r.URL.Query().Get("sort"))
		require.Equal(t, "5", r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(`{"total_count":42,"items":[{"full_name":"acme/agent","html_url":"https://github.com/acme/agent","stargazers_count":1200,"language":"Go","topics":["ai"],"license":{"spdx_id":"MIT"}}]}`))
	})
	mux.HandleFunc("GET /repos/acme/agent", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"full_name":"acme/agent","description":"Agents","forks_count":3,"updated_at":"2025-02-03T00:00:00Z"}`))
	})
	mux.HandleFunc("GET /repos/acme/agent/readme", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte("# Agent\nHello")),
		})
	})
	mux.HandleFunc("GET /repos/acme/empty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"full_name":"acme/empty"}`))
	})
	mux.HandleFunc("GET /repos/acme/empty/readme", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	mux.HandleFunc("POST /repos/acme/agent/issues", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Bug", body["title"])
		require.Equal(t, []any{"bug"}, body["labels"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number":7,"title":"Bug","state":"open","html_url":"https://github.com/acme/agent/issues/7"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	srv := newServer(t)
	c, err := New("gh-token", srv.URL, srv.Client())
	require.NoError(t, err)
	ctx := context.Background()

	repos, total, err := c.SearchRepos(ctx, "agent framework language:go", "stars", 5)
	require.NoError(t, err)
	require.Equal(t, 42, total)
	require.Equal(t, []Repo{{
		FullName: "acme/agent",
		URL:      "https://github.com/acme/agent",
		Language: "Go",
		Stars:    1200,
		Topics:   []string{"ai"},
		License:  "MIT",
	}}, repos)

	repo, err := c.GetRepo(ctx, "acme", "agent")
	require.NoError(t, err)
	require.Equal(t, "# Agent\nHello", repo.Readme)
	require.Equal(t, "2025-02-03", repo.UpdatedAt)

	empty, err := c.GetRepo(ctx, "acme", "empty")
	require.NoError(t, err)
	require.Empty(t, empty.Readme)

	iss, err := c.CreateIssue(ctx, "acme", "agent", "Bug", "", []string{"bug"})
	require.NoError(t, err)
	require.Equal(t, Issue{Number: 7, URL: "https://github.com/acme/agent/issues/7", Title: "Bug", State: "open"}, iss)
}

func TestClientErrors(t *testing.T) {
	srv := newServer(t)
	c, err := New("", srv.URL, srv.Client())
	require.NoError(t, err)

	_, _, err = c.SearchRepos(context.Background(), " ", "", 0)
	require.EqualError(t, err, "query is required")

	_, err = c.CreateIssue(context.Background(), "acme", "agent", "", "", nil)
	require.EqualError(t, err, "title is required")

	_, err = c.GetRepo(context.Background(), "acme", "missing")
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, StatusCode(err))
}
