// Package replay re-creates a sequence of commits on top of a branch using only the
// GitHub Git data API. No local clone is involved: every intermediate state lives in
// the remote object store and is sequenced through a temporary scratch branch.
//
// For each source commit the engine fabricates a "sibling" commit that carries the
// current scratch tree but claims the source commit's parent as its own. Merging the
// source commit into that sibling lets GitHub compute the resulting tree without a
// caller-side three-way merge. A final commit with the merged tree and the original
// message is then chained onto the previous result. The real branch only moves once
// every commit has been replayed.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gh "github.com/rancher/cherry-pick-bot/internal/github"
)

// Commit is a newly created commit produced by a replay.
type Commit struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
}

// Engine replays commits onto branches. It holds no state between calls; concurrent
// replays onto the same target share a scratch branch name and must be serialized by
// the caller.
type Engine struct {
	git   gh.GitData
	pulls gh.PullRequests
	log   *slog.Logger
}

// New returns an Engine. pulls may be nil when only Replay is used.
func New(git gh.GitData, pulls gh.PullRequests, logger *slog.Logger) *Engine {
	return &Engine{git: git, pulls: pulls, log: logger}
}

// Replay applies commits, in order, onto target and returns the new commits. The target
// branch is force-updated once, after the last commit has been replayed. Every source
// commit and the target branch are resolved before anything is written, so a
// KindNotFound error leaves the repository untouched.
func (e *Engine) Replay(ctx context.Context, repo gh.Repo, commits []string, target string) ([]Commit, error) {
	if len(commits) == 0 {
		return nil, ErrNoCommits
	}

	sources, err := e.resolveSources(ctx, repo, commits)
	if err != nil {
		return nil, err
	}
	return e.replaySources(ctx, repo, sources, target)
}

func (e *Engine) resolveSources(ctx context.Context, repo gh.Repo, commits []string) ([]gh.Commit, error) {
	sources := make([]gh.Commit, 0, len(commits))
	for _, sha := range commits {
		source, err := e.git.GetCommit(ctx, repo, sha)
		if err != nil {
			return nil, wrap("resolve source commit", sha, err)
		}
		sources = append(sources, source)
	}
	return sources, nil
}

func (e *Engine) replaySources(ctx context.Context, repo gh.Repo, sources []gh.Commit, target string) ([]Commit, error) {
	head, err := e.git.GetBranchHead(ctx, repo, target)
	if err != nil {
		return nil, wrap("resolve target branch "+target, "", err)
	}

	headCommit, err := e.git.GetCommit(ctx, repo, head)
	if err != nil {
		return nil, wrap("resolve target head", head, err)
	}

	r := &run{
		engine:  e,
		repo:    repo,
		target:  target,
		scratch: gh.ScratchBranchName(target),
		state:   StateInit,
	}

	if err := r.acquire(ctx, head); err != nil {
		return nil, err
	}
	defer r.release(ctx)

	parent, tree := head, headCommit.TreeSHA
	results := make([]Commit, 0, len(sources))
	for _, source := range sources {
		replayed, replayedTree, err := r.replayOne(ctx, source, parent, tree)
		if err != nil {
			return nil, err
		}
		parent, tree = replayed.SHA, replayedTree
		results = append(results, replayed)
	}

	if err := r.promote(ctx, parent); err != nil {
		return nil, err
	}

	return results, nil
}

// run tracks a single Replay invocation.
type run struct {
	engine  *Engine
	repo    gh.Repo
	target  string
	scratch string
	state   State
}

func (r *run) advance(to State, commit string) error {
	if !canTransition(r.state, to) {
		return fmt.Errorf("replay: invalid transition %s -> %s", r.state, to)
	}
	if log := r.engine.log; log != nil {
		log.Debug("replay state transition", "repo", r.repo.String(), "target", r.target, "from", r.state.String(), "state", to.String(), "commit", commit)
	}
	r.state = to
	return nil
}

// acquire points the scratch branch at sha, creating it or taking over a leftover one.
func (r *run) acquire(ctx context.Context, sha string) error {
	if err := createOrUpdateRef(ctx, r.engine.git, r.repo, r.scratch, sha); err != nil {
		return wrap("create scratch branch "+r.scratch, "", err)
	}
	return nil
}

// release deletes the scratch branch. It runs on every exit path and is best effort:
// failures are logged and never replace the replay outcome.
func (r *run) release(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	err := r.engine.git.DeleteRef(ctx, r.repo, r.scratch)
	if err != nil && !errors.Is(err, gh.ErrNotFound) {
		if log := r.engine.log; log != nil {
			log.Warn("failed to delete scratch branch", "repo", r.repo.String(), "branch", r.scratch, "state", r.state.String(), "error", err)
		}
		return
	}

	if err := r.advance(StateCleaned, ""); err != nil && r.engine.log != nil {
		r.engine.log.Warn("unexpected replay state", "error", err)
	}
}

func (r *run) replayOne(ctx context.Context, source gh.Commit, parent, tree string) (Commit, string, error) {
	git := r.engine.git

	var siblingParents []string
	if p := source.Parent(); p != "" {
		siblingParents = []string{p}
	}

	sibling, err := git.CreateCommit(ctx, r.repo, gh.NewCommit{
		Message:   "sibling of " + source.SHA,
		TreeSHA:   tree,
		Parents:   siblingParents,
		Author:    source.Author,
		Committer: source.Committer,
	})
	if err != nil {
		return Commit{}, "", wrap("create sibling commit", source.SHA, err)
	}

	if err := git.UpdateRef(ctx, r.repo, r.scratch, sibling.SHA, true); err != nil {
		return Commit{}, "", wrap("move scratch branch to sibling", source.SHA, err)
	}
	if err := r.advance(StateSiblingCreated, source.SHA); err != nil {
		return Commit{}, "", err
	}

	mergedTree := tree
	merge, err := git.Merge(ctx, r.repo, r.scratch, source.SHA, fmt.Sprintf("Merge %s into %s", source.SHA, r.scratch))
	switch {
	case errors.Is(err, gh.ErrNothingToMerge):
		// The scratch branch already contains the source changes.
	case err != nil:
		return Commit{}, "", wrap("merge", source.SHA, err)
	default:
		mergedTree = merge.TreeSHA
	}
	if err := r.advance(StateMerged, source.SHA); err != nil {
		return Commit{}, "", err
	}

	replayed, err := git.CreateCommit(ctx, r.repo, gh.NewCommit{
		Message:   source.Message,
		TreeSHA:   mergedTree,
		Parents:   []string{parent},
		Author:    source.Author,
		Committer: source.Committer,
	})
	if err != nil {
		return Commit{}, "", wrap("create replayed commit", source.SHA, err)
	}

	if err := git.UpdateRef(ctx, r.repo, r.scratch, replayed.SHA, true); err != nil {
		return Commit{}, "", wrap("move scratch branch to replayed commit", source.SHA, err)
	}
	if err := r.advance(StateReplayed, source.SHA); err != nil {
		return Commit{}, "", err
	}

	if log := r.engine.log; log != nil {
		log.Info("replayed commit", "repo", r.repo.String(), "target", r.target, "commit", source.SHA, "replayed", replayed.SHA)
	}

	return Commit{Message: source.Message, SHA: replayed.SHA}, mergedTree, nil
}

func (r *run) promote(ctx context.Context, tip string) error {
	if err := r.engine.git.UpdateRef(ctx, r.repo, r.target, tip, true); err != nil {
		return wrap("update target branch "+r.target, "", err)
	}
	return r.advance(StatePromoted, tip)
}

func createOrUpdateRef(ctx context.Context, git gh.GitData, repo gh.Repo, branch, sha string) error {
	err := git.CreateRef(ctx, repo, branch, sha)
	if errors.Is(err, gh.ErrRefExists) {
		return git.UpdateRef(ctx, repo, branch, sha, true)
	}
	return err
}
