package main

import (
	"context"

	ghclient "github.com/appcycle/appcycle/internal/github"
	"github.com/appcycle/appcycle/internal/policy"
)

// prLister adapts the GitHub client to the orchestrator's lister interface,
// binding the repository coordinates.
type prLister struct {
	client *ghclient.Client
	owner  string
	repo   string
}

func (l *prLister) ListOpenPullRequests(ctx context.Context) ([]policy.PullRequest, error) {
	prs, err := l.client.ListOpenPullRequests(ctx, l.owner, l.repo)
	if err != nil {
		return nil, err
	}
	out := make([]policy.PullRequest, 0, len(prs))
	for _, pr := range prs {
		out = append(out, policy.PullRequest{
			Number: pr.Number,
			URL:    pr.HTMLURL,
			Title:  pr.Title,
		})
	}
	return out, nil
}
