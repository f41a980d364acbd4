package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	ghclient "github.com/appcycle/appcycle/internal/github"
)

func TestPRLister_ConvertsPullRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/repos/octocat/hello/pulls" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"number":   7,
				"html_url": "https://github.com/octocat/hello/pull/7",
				"title":    "Add login flow",
				"state":    "open",
			},
		})
	}))
	defer srv.Close()

	client, err := ghclient.New("ghp_test", ghclient.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}

	lister := &prLister{client: client, owner: "octocat", repo: "hello"}
	prs, err := lister.ListOpenPullRequests(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prs) != 1 {
		t.Fatalf("expected 1 pull request, got %d", len(prs))
	}
	if prs[0].Number != 7 || prs[0].URL != "https://github.com/octocat/hello/pull/7" || prs[0].Title != "Add login flow" {
		t.Errorf("unexpected conversion: %+v", prs[0])
	}
}
