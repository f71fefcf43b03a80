package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gh "github.com/rancher/cherry-pick-bot/internal/github"
)

// PullRequestOptions customizes the pull request opened for a replay.
type PullRequestOptions struct {
	// Title replaces the title derived from the first replayed commit.
	Title string
	// Preamble is written above the generated body.
	Preamble  string
	Labels    []string
	Assignees []string
}

// PullRequest describes the pull request that carries replayed commits.
type PullRequest struct {
	Number  int      `json:"number"`
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Head    string   `json:"head"`
	Base    string   `json:"base"`
	Commits []Commit `json:"commits,omitempty"`
	// Reused is set when an open pull request for the same head already existed.
	Reused bool `json:"reused,omitempty"`
}

// ReplayAsPullRequest replays commits onto a branch derived from the commit list and
// target, then opens a pull request from that branch into target. Re-running with the
// same commits rebuilds the branch from the current target head and reuses an open
// pull request for it. When such a rerun fails, the branch is put back where it was so
// the open pull request keeps its commits.
func (e *Engine) ReplayAsPullRequest(ctx context.Context, repo gh.Repo, commits []string, target string, opts PullRequestOptions) (PullRequest, error) {
	if e.pulls == nil {
		return PullRequest{}, fmt.Errorf("pull request client is required")
	}
	if len(commits) == 0 {
		return PullRequest{}, ErrNoCommits
	}

	sources, err := e.resolveSources(ctx, repo, commits)
	if err != nil {
		return PullRequest{}, err
	}

	branch := gh.BranchNameForReplay(commits, target)
	previous, err := e.branchFromTarget(ctx, repo, target, branch)
	if err != nil {
		return PullRequest{}, err
	}

	replayed, err := e.replaySources(ctx, repo, sources, branch)
	if err != nil {
		if previous == "" {
			e.dropBranch(ctx, repo, branch)
		} else {
			e.restoreBranch(ctx, repo, branch, previous)
		}
		return PullRequest{}, err
	}

	title, body := Describe(replayed)
	if opts.Title != "" {
		title = opts.Title
	}
	if opts.Preamble != "" {
		body = strings.TrimSpace(opts.Preamble + "\n\n" + body)
	}

	pr, err := e.openPullRequest(ctx, repo, branch, target, title, body, opts)
	if err != nil {
		return PullRequest{}, err
	}
	pr.Commits = replayed
	return pr, nil
}

// PlaceholderPullRequest opens a pull request whose branch holds a single empty commit on
// top of target. It gives humans a branch to finish a replay that stopped on a conflict.
func (e *Engine) PlaceholderPullRequest(ctx context.Context, repo gh.Repo, commits []string, target, message string, opts PullRequestOptions) (PullRequest, error) {
	if e.pulls == nil {
		return PullRequest{}, fmt.Errorf("pull request client is required")
	}

	head, err := e.git.GetBranchHead(ctx, repo, target)
	if err != nil {
		return PullRequest{}, wrap("resolve target branch "+target, "", err)
	}

	headCommit, err := e.git.GetCommit(ctx, repo, head)
	if err != nil {
		return PullRequest{}, wrap("resolve target head", head, err)
	}

	placeholder, err := e.git.CreateCommit(ctx, repo, gh.NewCommit{
		Message: message,
		TreeSHA: headCommit.TreeSHA,
		Parents: []string{head},
	})
	if err != nil {
		return PullRequest{}, wrap("create placeholder commit", "", err)
	}

	branch := gh.BranchNameForReplay(commits, target)
	if err := createOrUpdateRef(ctx, e.git, repo, branch, placeholder.SHA); err != nil {
		return PullRequest{}, wrap("create branch "+branch, "", err)
	}

	title := opts.Title
	if title == "" {
		title = firstLine(message)
	}

	return e.openPullRequest(ctx, repo, branch, target, title, strings.TrimSpace(opts.Preamble), opts)
}

// Describe derives a pull request title and body from replayed commits: the first
// commit's subject becomes the title and every remaining message is folded into the body.
func Describe(commits []Commit) (string, string) {
	if len(commits) == 0 {
		return "", ""
	}

	subject, rest, _ := strings.Cut(strings.TrimSpace(commits[0].Message), "\n")

	parts := make([]string, 0, len(commits))
	if rest = strings.TrimSpace(rest); rest != "" {
		parts = append(parts, rest)
	}
	for _, commit := range commits[1:] {
		if msg := strings.TrimSpace(commit.Message); msg != "" {
			parts = append(parts, msg)
		}
	}

	return strings.TrimSpace(subject), strings.Join(parts, "\n\n")
}

// branchFromTarget points branch at the head of target. It returns the SHA branch held
// before, or "" when this call created it.
func (e *Engine) branchFromTarget(ctx context.Context, repo gh.Repo, target, branch string) (string, error) {
	head, err := e.git.GetBranchHead(ctx, repo, target)
	if err != nil {
		return "", wrap("resolve target branch "+target, "", err)
	}

	err = e.git.CreateRef(ctx, repo, branch, head)
	if err == nil {
		return "", nil
	}
	if !errors.Is(err, gh.ErrRefExists) {
		return "", wrap("create branch "+branch, "", err)
	}

	previous, err := e.git.GetBranchHead(ctx, repo, branch)
	if err != nil {
		return "", wrap("resolve branch "+branch, "", err)
	}
	if err := e.git.UpdateRef(ctx, repo, branch, head, true); err != nil {
		return "", wrap("reset branch "+branch, "", err)
	}
	return previous, nil
}

func (e *Engine) restoreBranch(ctx context.Context, repo gh.Repo, branch, sha string) {
	err := e.git.UpdateRef(context.WithoutCancel(ctx), repo, branch, sha, true)
	if err != nil && e.log != nil {
		e.log.Warn("failed to restore replay branch", "repo", repo.String(), "branch", branch, "sha", sha, "error", err)
	}
}

func (e *Engine) dropBranch(ctx context.Context, repo gh.Repo, branch string) {
	err := e.git.DeleteRef(context.WithoutCancel(ctx), repo, branch)
	if err != nil && !errors.Is(err, gh.ErrNotFound) && e.log != nil {
		e.log.Warn("failed to delete replay branch", "repo", repo.String(), "branch", branch, "error", err)
	}
}

func (e *Engine) openPullRequest(ctx context.Context, repo gh.Repo, branch, target, title, body string, opts PullRequestOptions) (PullRequest, error) {
	existing, err := e.pulls.ListCherryPickPRs(ctx, repo, branch, target)
	if err != nil {
		return PullRequest{}, fmt.Errorf("list pull requests for %s: %w", branch, err)
	}

	if len(existing) > 0 {
		if e.log != nil {
			e.log.Info("reusing open pull request", "repo", repo.String(), "branch", branch, "target", target, "pr_number", existing[0].Number)
		}
		return PullRequest{
			Number: existing[0].Number,
			URL:    existing[0].URL,
			Title:  existing[0].Title,
			Body:   existing[0].Body,
			Head:   branch,
			Base:   target,
			Reused: true,
		}, nil
	}

	created, err := e.pulls.CreatePullRequest(ctx, repo, gh.CreatePROptions{
		Title:               title,
		Body:                body,
		Head:                branch,
		Base:                target,
		Labels:              opts.Labels,
		Assignees:           opts.Assignees,
		MaintainerCanModify: true,
	})
	if err != nil {
		return PullRequest{}, fmt.Errorf("create pull request: %w", err)
	}

	if e.log != nil {
		e.log.Info("opened pull request", "repo", repo.String(), "branch", branch, "target", target, "pr_number", created.Number, "pr_url", created.URL)
	}

	return PullRequest{
		Number: created.Number,
		URL:    created.URL,
		Title:  title,
		Body:   body,
		Head:   branch,
		Base:   target,
	}, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
