// Package policy decides what to do with the app registry for one pull
// request: keep an existing app, relabel one in place, recycle one whose
// owning pull request has closed, or create a new one. The decision is a
// total function over its inputs and touches no I/O.
package policy

import (
	"fmt"
	"regexp"

	"github.com/appcycle/appcycle/internal/registry"
)

// PullRequest is the slice of pull-request state the policy needs.
type PullRequest struct {
	Number int
	URL    string
	Title  string
}

// ActionKind identifies the terminal action of a decision.
type ActionKind string

const (
	// ActionNone means an app already matches the pull request and
	// preview URL; nothing to do.
	ActionNone ActionKind = "none"
	// ActionUpdate means an existing app's id is reused and its fields
	// replaced (relabel-in-place or recycle).
	ActionUpdate ActionKind = "update"
	// ActionCreate means no app can be reused; register a new one.
	ActionCreate ActionKind = "create"
)

// Decision is the single terminal action for one run.
type Decision struct {
	Kind    ActionKind
	AppID   int64 // set for ActionNone and ActionUpdate
	Options registry.AppOptions

	// PostComment is false exactly when the desired end state already
	// held, so downstream steps don't re-notify the pull request.
	PostComment bool
}

// Decide picks exactly one action, in strict order: an app already matching
// both the pull request and the preview URL wins (no-op); else an app tagged
// with this pull request is relabeled to the new preview URL; else the first
// app whose owning pull request is no longer open is recycled; else a new
// app is created.
//
// "First" is the order of existingApps as returned by the registry, which
// lists apps in creation order. That makes the recycle choice deterministic
// for a given registry state.
func Decide(current PullRequest, previewURL string, openPRs []PullRequest, existingApps []registry.App) Decision {
	opts := registry.AppOptions{
		Name:        DeriveName(current.Title, current.Number),
		RedirectURI: previewURL,
		Github:      current.URL,
	}

	for _, app := range existingApps {
		if app.Github == current.URL && app.RedirectURI == previewURL {
			return Decision{Kind: ActionNone, AppID: app.ID, Options: opts}
		}
	}

	for _, app := range existingApps {
		if app.Github == current.URL {
			return Decision{Kind: ActionUpdate, AppID: app.ID, Options: opts, PostComment: true}
		}
	}

	open := make(map[string]bool, len(openPRs))
	for _, pr := range openPRs {
		open[pr.URL] = true
	}
	for _, app := range existingApps {
		if app.Github != "" && !open[app.Github] {
			return Decision{Kind: ActionUpdate, AppID: app.ID, Options: opts, PostComment: true}
		}
	}

	return Decision{Kind: ActionCreate, Options: opts, PostComment: true}
}

var nameStrip = regexp.MustCompile(`[^A-Za-z0-9 ]`)

const nameMaxLen = 35

// DeriveName builds an app display name from a pull request title and
// number: characters outside [A-Za-z0-9 ] are stripped, the remainder is
// cut to 35 characters, and "PR<number>" is appended. Stripping and
// truncation are idempotent, so re-deriving from an already-sanitized
// title yields the same name.
func DeriveName(title string, number int) string {
	return sanitizeTitle(title) + fmt.Sprintf("PR%d", number)
}

func sanitizeTitle(title string) string {
	s := nameStrip.ReplaceAllString(title, "")
	if len(s) > nameMaxLen {
		s = s[:nameMaxLen]
	}
	return s
}
