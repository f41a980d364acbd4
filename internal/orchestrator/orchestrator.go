// Package orchestrator runs the reconcile sequence for one pull request:
// list open PRs, authorize a fresh registry session, list apps, decide, and
// apply. The whole sequence retries as a unit; a fresh session is dialed on
// every attempt.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/appcycle/appcycle/internal/policy"
	"github.com/appcycle/appcycle/internal/registry"
	"github.com/appcycle/appcycle/internal/retry"
)

// PullRequestLister lists the open pull requests the policy matches against.
type PullRequestLister interface {
	ListOpenPullRequests(ctx context.Context) ([]policy.PullRequest, error)
}

// RegistrySession is one authorized conversation with the app registry.
type RegistrySession interface {
	Authorize(ctx context.Context, token string) (registry.Authorization, error)
	ListApps(ctx context.Context) ([]registry.App, error)
	RegisterApp(ctx context.Context, opts registry.AppOptions) (registry.App, error)
	UpdateApp(ctx context.Context, id int64, opts registry.AppOptions) (registry.App, error)
	Close() error
}

// SessionDialer opens a new registry session. Called once per attempt so no
// session outlives the attempt that dialed it.
type SessionDialer func(ctx context.Context) (RegistrySession, error)

// Config holds the collaborators and inputs for a run.
type Config struct {
	Lister PullRequestLister
	Dial   SessionDialer

	Token      string
	Current    policy.PullRequest
	PreviewURL string
	Scopes     []string

	// MaxAttempts bounds the retry loop (including the first try).
	// Values below 1 mean a single attempt.
	MaxAttempts int
	// Backoff optionally delays between attempts; empty means immediate.
	Backoff []time.Duration

	Logger *slog.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	AppID int64
	// PostComment is false exactly when the app already matched, so the
	// downstream notification step can be skipped.
	PostComment bool
}

// Run executes the sequence, retrying the whole thing on failure until an
// attempt succeeds or MaxAttempts is exhausted.
func Run(ctx context.Context, cfg Config) (Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	n := 0
	return retry.DoVal(ctx, func() (Result, error) {
		n++
		logger.Info("starting attempt", "attempt", n, "max_attempts", attempts)
		res, err := attempt(ctx, cfg, logger)
		if err != nil {
			logger.Error("attempt failed", "attempt", n, "error", err)
		}
		return res, err
	}, retry.WithMaxAttempts(attempts), retry.WithBackoff(cfg.Backoff...))
}

// attempt runs one pass of the sequence against a fresh session.
func attempt(ctx context.Context, cfg Config, logger *slog.Logger) (Result, error) {
	openPRs, err := cfg.Lister.ListOpenPullRequests(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing open pull requests: %w", err)
	}
	logger.Info("fetched open pull requests", "count", len(openPRs))

	sess, err := cfg.Dial(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("dialing registry: %w", err)
	}
	defer sess.Close()

	if _, err := sess.Authorize(ctx, cfg.Token); err != nil {
		return Result{}, fmt.Errorf("authorizing: %w", err)
	}
	logger.Info("session authorized")

	apps, err := sess.ListApps(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing apps: %w", err)
	}
	logger.Info("fetched existing apps", "count", len(apps))

	decision := policy.Decide(cfg.Current, cfg.PreviewURL, openPRs, apps)
	decision.Options.Scopes = cfg.Scopes

	switch decision.Kind {
	case policy.ActionNone:
		logger.Info("app already up to date", "app_id", decision.AppID)
		return Result{AppID: decision.AppID, PostComment: false}, nil

	case policy.ActionUpdate:
		app, err := sess.UpdateApp(ctx, decision.AppID, decision.Options)
		if err != nil {
			return Result{}, fmt.Errorf("updating app %d: %w", decision.AppID, err)
		}
		logger.Info("app updated", "app_id", app.ID, "redirect_uri", app.RedirectURI)
		return Result{AppID: app.ID, PostComment: true}, nil

	case policy.ActionCreate:
		app, err := sess.RegisterApp(ctx, decision.Options)
		if err != nil {
			return Result{}, fmt.Errorf("registering app: %w", err)
		}
		logger.Info("app registered", "app_id", app.ID, "redirect_uri", app.RedirectURI)
		return Result{AppID: app.ID, PostComment: true}, nil
	}

	return Result{}, fmt.Errorf("unknown policy action %q", decision.Kind)
}
