package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gh "github.com/rancher/cherry-pick-bot/internal/github"
	"github.com/rancher/cherry-pick-bot/internal/replay"
	"github.com/rancher/cherry-pick-bot/internal/targets"
)

// Replayer publishes replayed commits as pull requests. *replay.Engine satisfies it.
type Replayer interface {
	ReplayAsPullRequest(ctx context.Context, repo gh.Repo, commits []string, target string, opts replay.PullRequestOptions) (replay.PullRequest, error)
	PlaceholderPullRequest(ctx context.Context, repo gh.Repo, commits []string, target, message string, opts replay.PullRequestOptions) (replay.PullRequest, error)
}

// Orchestrator decides which branches a merged pull request should be replayed onto and
// drives the replay engine for each of them.
type Orchestrator struct {
	cfg      Config
	gh       gh.Client
	replayer Replayer
	log      *slog.Logger
}

// TargetStatus describes the evaluation state for a target branch.
type TargetStatus string

const (
	TargetStatusPending               TargetStatus = "pending"
	TargetStatusDryRun                TargetStatus = "dry_run"
	TargetStatusSucceeded             TargetStatus = "succeeded"
	TargetStatusFailed                TargetStatus = "failed"
	TargetStatusConflict              TargetStatus = "conflict"
	TargetStatusPlaceholderPR         TargetStatus = "placeholder_pr"
	TargetStatusSkippedNoBranch       TargetStatus = "skipped_missing_branch"
	TargetStatusSkippedExistingPR     TargetStatus = "skipped_existing_pr"
	TargetStatusSkippedAlreadyPresent TargetStatus = "skipped_commit_present"
)

// Skip reasons shared with callers.
const (
	SkipNotMerged        = "not merged"
	SkipNoTargets        = "no targets"
	SkipNoCommand        = "no cherry-pick command"
	SkipPermissionDenied = "permission denied"
)

// TargetResult captures per-target orchestration outcomes.
type TargetResult struct {
	Target     targets.Target
	Status     TargetStatus
	Reason     string
	ExistingPR *gh.CherryPickPR
	CreatedPR  *gh.CherryPickPR
	Commits    []replay.Commit
}

// Result captures the outcome of a single orchestrator run.
type Result struct {
	Targets       []TargetResult
	SourceCommits []string
	Skipped       bool
	SkippedReason string
}

// New returns a configured Orchestrator. When replayer is nil a replay.Engine backed by
// ghClient is used.
func New(cfg Config, ghClient gh.Client, replayer Replayer, logger *slog.Logger) *Orchestrator {
	if replayer == nil && ghClient != nil {
		replayer = replay.New(ghClient, ghClient, logger)
	}
	if cfg.RequiredPermission == "" {
		cfg.RequiredPermission = gh.PermissionWrite
	}
	return &Orchestrator{cfg: cfg, gh: ghClient, replayer: replayer, log: logger}
}

// ProcessPullRequest evaluates a pull request and replays it onto every branch named
// by its labels or the configured targets. A best-effort Result is always returned
// when err == nil.
func (o *Orchestrator) ProcessPullRequest(ctx context.Context, repo gh.Repo, number int) (Result, error) {
	if o.gh == nil {
		return Result{}, fmt.Errorf("github client is required")
	}

	pr, skip, err := o.mergedPullRequest(ctx, repo, number)
	if err != nil || skip != "" {
		return Result{Skipped: skip != "", SkippedReason: skip}, err
	}

	list, err := o.collectTargets(pr)
	if err != nil {
		return Result{}, err
	}
	if len(list) == 0 {
		o.info("skipping cherry-pick: no matching labels or overrides", repo, number)
		return Result{Skipped: true, SkippedReason: SkipNoTargets}, nil
	}

	// Labels may have been removed while the event was queued.
	refreshed, err := o.gh.GetPullRequest(ctx, repo, number)
	if err != nil {
		return Result{}, fmt.Errorf("refresh pull request: %w", err)
	}
	pr = refreshed

	list, err = o.collectTargets(pr)
	if err != nil {
		return Result{}, err
	}
	if len(list) == 0 {
		o.info("skipping cherry-pick: labels removed before execution and no overrides remaining", repo, number)
		return Result{Skipped: true, SkippedReason: SkipNoTargets}, nil
	}

	return o.run(ctx, repo, pr, list)
}

// ProcessCommand handles a "/cherry-pick <branch>" comment on a pull request.
func (o *Orchestrator) ProcessCommand(ctx context.Context, repo gh.Repo, number int, author, body string) (Result, error) {
	if o.gh == nil {
		return Result{}, fmt.Errorf("github client is required")
	}

	target, ok := targets.FromCommand(body)
	if !ok {
		return Result{Skipped: true, SkippedReason: SkipNoCommand}, nil
	}

	permission, err := o.gh.GetPermissionLevel(ctx, repo, author)
	if err != nil {
		return Result{}, fmt.Errorf("check permission for %s: %w", author, err)
	}
	if !gh.PermissionAtLeast(permission, o.cfg.RequiredPermission) {
		if o.log != nil {
			o.log.Warn("ignoring cherry-pick command: insufficient permission", "owner", repo.Owner, "repo", repo.Name, "number", number, "author", author, "permission", permission, "required", o.cfg.RequiredPermission)
		}
		return Result{
			Skipped:       true,
			SkippedReason: fmt.Sprintf("%s: %s has %s access, %s required", SkipPermissionDenied, author, permission, o.cfg.RequiredPermission),
		}, nil
	}

	pr, skip, err := o.mergedPullRequest(ctx, repo, number)
	if err != nil || skip != "" {
		return Result{Skipped: skip != "", SkippedReason: skip}, err
	}

	return o.run(ctx, repo, pr, []targets.Target{target})
}

func (o *Orchestrator) mergedPullRequest(ctx context.Context, repo gh.Repo, number int) (gh.PRMetadata, string, error) {
	pr, err := o.gh.GetPullRequest(ctx, repo, number)
	if err != nil {
		return gh.PRMetadata{}, "", fmt.Errorf("get pull request: %w", err)
	}

	if !pr.IsMerged {
		o.info("skipping cherry-pick: PR not merged", repo, number)
		return pr, SkipNotMerged, nil
	}

	if pr.IsFromFork {
		if o.log != nil {
			o.log.Info("skipping cherry-pick: forked pull request", "owner", repo.Owner, "repo", repo.Name, "number", number, "head_owner", pr.HeadOwner, "head_repo", pr.HeadRepo)
		}
		return pr, "pull request originates from a fork; create a branch in the base repository and cherry-pick from there", nil
	}

	return pr, "", nil
}

func (o *Orchestrator) collectTargets(pr gh.PRMetadata) ([]targets.Target, error) {
	fromLabels, err := targets.FromLabels(pr.Labels, o.cfg.LabelPrefix)
	if err != nil {
		return nil, fmt.Errorf("collect targets: %w", err)
	}

	// Done labels share the prefix; they never name a target.
	pending := fromLabels[:0]
	for _, t := range fromLabels {
		if !strings.HasPrefix(strings.ToLower(t.Branch), "done/") {
			pending = append(pending, t)
		}
	}

	return targets.Merge(pending, targets.FromBranches(o.cfg.TargetBranches, targets.SourceConfig)), nil
}

func (o *Orchestrator) run(ctx context.Context, repo gh.Repo, pr gh.PRMetadata, list []targets.Target) (Result, error) {
	if err := targets.Validate(list); err != nil {
		return Result{}, fmt.Errorf("validate targets: %w", err)
	}

	commits, err := o.sourceCommits(ctx, repo, pr)
	if err != nil {
		return Result{}, err
	}

	plan, err := o.evaluateTargets(ctx, repo, pr, commits, list)
	if err != nil {
		return Result{}, err
	}

	result := Result{Targets: plan, SourceCommits: commits}
	if !hasPendingTargets(plan) {
		return result, nil
	}

	if o.cfg.DryRun {
		for i := range plan {
			if plan[i].Status == TargetStatusPending {
				plan[i].Status = TargetStatusDryRun
				plan[i].Reason = "dry run enabled"
			}
		}
		return result, nil
	}

	if o.replayer == nil {
		return Result{}, fmt.Errorf("replayer is required")
	}

	result.Targets = o.executePendingTargets(ctx, repo, pr, commits, plan)
	return result, nil
}

// sourceCommits returns the commits to replay. A merge commit with one parent (squash or
// rebase merge) is replayed as is; a true merge commit is expanded into the pull
// request's own commits.
func (o *Orchestrator) sourceCommits(ctx context.Context, repo gh.Repo, pr gh.PRMetadata) ([]string, error) {
	sha := pr.MergeSHA
	if sha == "" {
		sha = pr.HeadSHA
	}
	if sha == "" {
		return nil, fmt.Errorf("source commit SHA could not be determined")
	}

	commit, err := o.gh.GetCommit(ctx, repo, sha)
	if err != nil {
		return nil, fmt.Errorf("get source commit %s: %w", sha, err)
	}
	if len(commit.Parents) <= 1 {
		return []string{sha}, nil
	}

	shas, err := o.gh.ListPullRequestCommits(ctx, repo, pr.Number)
	if err != nil {
		return nil, fmt.Errorf("list commits of #%d: %w", pr.Number, err)
	}
	if len(shas) == 0 {
		return nil, fmt.Errorf("pull request #%d has no commits", pr.Number)
	}
	return shas, nil
}

func (o *Orchestrator) evaluateTargets(ctx context.Context, repo gh.Repo, pr gh.PRMetadata, commits []string, list []targets.Target) ([]TargetResult, error) {
	results := make([]TargetResult, 0, len(list))
	probe := commits[len(commits)-1]
	if pr.MergeSHA != "" {
		probe = pr.MergeSHA
	}

	for _, target := range list {
		status := TargetResult{Target: target, Status: TargetStatusPending}

		doneLabel := o.cfg.doneLabel(target.Branch)
		hasLabel, err := o.gh.HasLabel(ctx, repo, pr.Number, doneLabel)
		if err != nil {
			if o.log != nil {
				o.log.Warn("failed to check for done label, continuing anyway", "label", doneLabel, "error", err)
			}
		} else if hasLabel {
			status.Status = TargetStatusSkippedExistingPR
			status.Reason = fmt.Sprintf("already cherry-picked (found %s label)", doneLabel)
			if o.log != nil {
				o.log.Info("skipping cherry-pick target: already completed", "owner", repo.Owner, "repo", repo.Name, "target", target.Branch, "label", doneLabel)
			}
			results = append(results, status)
			continue
		}

		if err := o.gh.EnsureBranchExists(ctx, repo, target.Branch); err != nil {
			if errors.Is(err, gh.ErrBranchNotFound) {
				status.Status = TargetStatusSkippedNoBranch
				status.Reason = "target branch not found in repository; ensure the release branch exists or remove the label"
				if o.log != nil {
					o.log.Warn("skipping cherry-pick target: branch missing", "owner", repo.Owner, "repo", repo.Name, "target", target.Branch)
				}
				results = append(results, status)
				continue
			}
			return nil, fmt.Errorf("ensure branch %s: %w", target.Branch, err)
		}

		head := gh.BranchNameForReplay(commits, target.Branch)
		existing, err := o.gh.ListCherryPickPRs(ctx, repo, head, target.Branch)
		if err != nil {
			return nil, fmt.Errorf("list cherry-pick prs for %s: %w", target.Branch, err)
		}
		if len(existing) > 0 {
			status.Status = TargetStatusSkippedExistingPR
			status.Reason = "cherry-pick PR already exists"
			status.ExistingPR = &existing[0]
			if o.log != nil {
				o.log.Info("skipping cherry-pick target: PR already exists", "owner", repo.Owner, "repo", repo.Name, "target", target.Branch, "existing_pr", existing[0].URL)
			}
			results = append(results, status)
			continue
		}

		present, err := o.gh.CommitExistsOnBranch(ctx, repo, probe, target.Branch)
		if err != nil {
			return nil, fmt.Errorf("check commit on %s: %w", target.Branch, err)
		}
		if present {
			status.Status = TargetStatusSkippedAlreadyPresent
			status.Reason = "commit already present on target"
			if o.log != nil {
				o.log.Info("skipping cherry-pick target: commit already present", "owner", repo.Owner, "repo", repo.Name, "target", target.Branch, "commit", probe)
			}
			results = append(results, status)
			continue
		}

		results = append(results, status)
	}

	return results, nil
}

func hasPendingTargets(results []TargetResult) bool {
	for _, res := range results {
		if res.Status == TargetStatusPending {
			return true
		}
	}
	return false
}

func (o *Orchestrator) executePendingTargets(ctx context.Context, repo gh.Repo, pr gh.PRMetadata, commits []string, plan []TargetResult) []TargetResult {
	updated := make([]TargetResult, len(plan))
	for i, res := range plan {
		if res.Status != TargetStatusPending {
			updated[i] = res
			continue
		}
		updated[i] = o.executeTarget(ctx, repo, pr, commits, res)
	}
	return updated
}

func (o *Orchestrator) executeTarget(ctx context.Context, repo gh.Repo, pr gh.PRMetadata, commits []string, res TargetResult) TargetResult {
	branch := res.Target.Branch
	opts := o.pullRequestOptions(pr, res.Target)

	created, err := o.replayer.ReplayAsPullRequest(ctx, repo, commits, branch, opts)
	if err != nil {
		if replay.IsMergeConflict(err) {
			return o.handleConflict(ctx, repo, pr, commits, res, opts, err)
		}
		retryable := gh.IsRetryable(err)
		res.Status = TargetStatusFailed
		res.Reason = fmt.Sprintf("replay onto %s: %v", branch, err)
		if retryable {
			res.Reason = fmt.Sprintf("replay onto %s (retryable): %v", branch, err)
		}
		if o.log != nil {
			o.log.Error("cherry-pick failed", "owner", repo.Owner, "repo", repo.Name, "target", branch, "kind", string(replay.KindOf(err)), "retryable", retryable, "error", err)
		}
		return res
	}

	res.Status = TargetStatusSucceeded
	res.Reason = "cherry-pick pull request created"
	if created.Reused {
		res.Reason = "cherry-pick branch rebuilt; open pull request reused"
	}
	res.CreatedPR = toCherryPickPR(created)
	res.Commits = created.Commits

	if o.log != nil {
		o.log.Info("created cherry-pick pull request", "owner", repo.Owner, "repo", repo.Name, "base_branch", branch, "head_branch", created.Head, "pr_number", created.Number, "pr_url", created.URL)
	}

	o.markDone(ctx, repo, pr.Number, branch)
	return res
}

func (o *Orchestrator) handleConflict(ctx context.Context, repo gh.Repo, pr gh.PRMetadata, commits []string, res TargetResult, opts replay.PullRequestOptions, conflict error) TargetResult {
	branch := res.Target.Branch

	if o.cfg.ConflictStrategy != ConflictStrategyPlaceholderPR {
		res.Status = TargetStatusConflict
		res.Reason = fmt.Sprintf("merge conflict: %v", conflict)
		if o.log != nil {
			o.log.Warn("cherry-pick stopped on merge conflict", "owner", repo.Owner, "repo", repo.Name, "target", branch, "error", conflict)
		}
		return res
	}

	opts.Preamble = decoratePlaceholderBody(opts.Preamble, pr.Number, branch, conflict)
	message := fmt.Sprintf("Placeholder cherry-pick for #%d into %s", pr.Number, branch)

	created, err := o.replayer.PlaceholderPullRequest(ctx, repo, commits, branch, message, opts)
	if err != nil {
		res.Status = TargetStatusFailed
		res.Reason = fmt.Sprintf("create placeholder pull request failed (%v): %v", conflict, err)
		return res
	}

	res.Status = TargetStatusPlaceholderPR
	res.Reason = fmt.Sprintf("cherry-pick conflict: placeholder PR opened (%v)", conflict)
	res.CreatedPR = toCherryPickPR(created)

	if o.log != nil {
		o.log.Warn("created placeholder cherry-pick pull request", "owner", repo.Owner, "repo", repo.Name, "base_branch", branch, "head_branch", created.Head, "pr_number", created.Number, "pr_url", created.URL, "error", conflict)
	}

	o.markDone(ctx, repo, pr.Number, branch)
	return res
}

// markDone labels the source pull request so later events skip the target. Failures are
// logged only; the pull request already exists.
func (o *Orchestrator) markDone(ctx context.Context, repo gh.Repo, number int, branch string) {
	label := o.cfg.doneLabel(branch)
	if err := o.gh.AddLabel(ctx, repo, number, label); err != nil {
		if o.log != nil {
			o.log.Warn("failed to add done label to source PR", "label", label, "source_pr", number, "error", err)
		}
		return
	}
	if o.log != nil {
		o.log.Info("added done label to source PR", "label", label, "source_pr", number)
	}
}

func (o *Orchestrator) info(msg string, repo gh.Repo, number int) {
	if o.log != nil {
		o.log.Info(msg, "owner", repo.Owner, "repo", repo.Name, "number", number)
	}
}

func toCherryPickPR(pr replay.PullRequest) *gh.CherryPickPR {
	return &gh.CherryPickPR{
		URL:    pr.URL,
		Number: pr.Number,
		Title:  pr.Title,
		Body:   pr.Body,
		Head:   pr.Head,
		Base:   pr.Base,
	}
}
