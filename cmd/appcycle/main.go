// appcycle keeps preview-deployment app credentials in sync with pull
// requests: one valid app id per open PR, recycling apps left behind by
// closed PRs instead of growing the registry forever.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/appcycle/appcycle/internal/config"
	"github.com/appcycle/appcycle/internal/credentials"
	ghclient "github.com/appcycle/appcycle/internal/github"
	"github.com/appcycle/appcycle/internal/orchestrator"
	"github.com/appcycle/appcycle/internal/outputs"
	"github.com/appcycle/appcycle/internal/policy"
	"github.com/appcycle/appcycle/internal/registry"
)

var version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, `appcycle — preview app id reconciler

Reads its inputs from the CI environment (INPUT_*, GITHUB_*) and publishes
step outputs to $GITHUB_OUTPUT.

Usage:
  appcycle run [flags]

Flags:
  --config-dir    Credentials directory (default: ~/.appcycle)
  --profile       Credentials profile name
  --github-url    Override GitHub API endpoint (env: APPCYCLE_GITHUB_URL)
  --registry-url  Override registry endpoint (env: INPUT_REGISTRY_URL)
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	subcmd := os.Args[1]
	rest := os.Args[2:]

	var err error
	switch subcmd {
	case "run":
		err = run(rest)
	case "--version", "version":
		fmt.Println("appcycle " + version)
		return
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "appcycle %s: %v\n", subcmd, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	configDir := credentials.DefaultPath()
	profile := ""
	githubURL := os.Getenv("APPCYCLE_GITHUB_URL")
	registryURL := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config-dir":
			if i+1 < len(args) {
				configDir = args[i+1]
				i++
			}
		case "--profile":
			if i+1 < len(args) {
				profile = args[i+1]
				i++
			}
		case "--github-url":
			if i+1 < len(args) {
				githubURL = args[i+1]
				i++
			}
		case "--registry-url":
			if i+1 < len(args) {
				registryURL = args[i+1]
				i++
			}
		}
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	if registryURL != "" {
		cfg.RegistryURL = registryURL
	}

	if reason, proceed := cfg.Gate(); !proceed {
		logger.Info("nothing to do", "reason", reason)
		return nil
	}

	creds, err := credentials.Resolve(configDir, profile)
	if err != nil {
		return fmt.Errorf("resolving credentials: %w", err)
	}

	var ghOpts []ghclient.Option
	if githubURL != "" {
		ghOpts = append(ghOpts, ghclient.WithBaseURL(githubURL))
	}
	if creds.HasGithubApp() {
		ghOpts = append(ghOpts, ghclient.WithAppAuth(ghclient.AppCredentials{
			ClientID:       creds.GithubAppClientID,
			InstallationID: creds.GithubAppInstallationID,
			PrivateKeyPath: creds.GithubAppPrivateKeyPath,
		}))
	}
	gh, err := ghclient.New(creds.GithubToken, ghOpts...)
	if err != nil {
		return fmt.Errorf("creating GitHub client: %w", err)
	}

	result, err := orchestrator.Run(ctx, orchestrator.Config{
		Lister: &prLister{client: gh, owner: cfg.Owner, repo: cfg.Repo},
		Dial: func(ctx context.Context) (orchestrator.RegistrySession, error) {
			return registry.Dial(ctx, cfg.RegistryURL, cfg.TargetAppID, registry.WithLogger(logger))
		},
		Token: creds.RegistryToken,
		Current: policy.PullRequest{
			Number: cfg.PRNumber,
			URL:    cfg.PRURL,
			Title:  cfg.PRTitle,
		},
		PreviewURL:  cfg.ResolvePreviewURL(),
		Scopes:      cfg.Scopes,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("reconciling app: %w", err)
	}

	if err := outputs.Publish(outputs.Values{
		PRURL:             cfg.PRURL,
		PRNumber:          cfg.PRNumber,
		AppID:             result.AppID,
		PreviewURL:        cfg.ResolvePreviewURL(),
		ShouldPostComment: result.PostComment,
	}); err != nil {
		return fmt.Errorf("publishing outputs: %w", err)
	}

	logger.Info("done", "app_id", result.AppID, "should_post_comment", result.PostComment)
	return nil
}
