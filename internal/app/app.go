package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rancher/cherry-pick-bot/internal/event"
	gh "github.com/rancher/cherry-pick-bot/internal/github"
	"github.com/rancher/cherry-pick-bot/internal/orchestrator"
)

// ErrIgnored is returned by Handle when the event cannot trigger a cherry-pick.
var ErrIgnored = errors.New("event ignored")

// Runner glues together the orchestrator and supporting services to execute the cherry-pick flow.
type Runner struct {
	cfg       Config
	log       *slog.Logger
	ghFactory gh.Factory
	replayer  orchestrator.Replayer // only set for testing via NewRunnerWithDeps
}

// Outcome is what a single handled event produced.
type Outcome struct {
	Event  string
	Repo   string
	Number int
	Result orchestrator.Result
	// Failed lists target branches that failed or stopped on a conflict.
	Failed []string
}

// NewRunner constructs a Runner with the supplied configuration.
func NewRunner(cfg Config) (*Runner, error) {
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	return &Runner{
		cfg:       cfg,
		log:       logger,
		ghFactory: gh.NewRESTFactory(cfg.GitHubBaseURL, cfg.GitHubUploadURL),
	}, nil
}

// NewRunnerWithDeps constructs a Runner with injected dependencies for testing.
func NewRunnerWithDeps(cfg Config, log *slog.Logger, ghFactory gh.Factory, replayer orchestrator.Replayer) *Runner {
	return &Runner{cfg: cfg, log: log, ghFactory: ghFactory, replayer: replayer}
}

// Logger returns the runner's logger.
func (r *Runner) Logger() *slog.Logger {
	return r.log
}

// Client builds an authenticated GitHub client from the runner's configuration.
func (r *Runner) Client(ctx context.Context) (gh.Client, error) {
	client, err := r.ghFactory.New(ctx, r.cfg.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("initialize github client: %w", err)
	}
	return client, nil
}

// Run executes the application as a GitHub Action, reading the triggering event from
// GITHUB_EVENT_NAME and GITHUB_EVENT_PATH.
func (r *Runner) Run(ctx context.Context) error {
	if r.log != nil {
		r.log.Info("starting cherry-pick action run", "dry_run", r.cfg.DryRun, "conflict_strategy", r.cfg.ConflictStrategy)
	}

	eventName := strings.TrimSpace(os.Getenv("GITHUB_EVENT_NAME"))
	if eventName == "pull_request_target" {
		eventName = event.NamePullRequest
	}
	if eventName != event.NamePullRequest && eventName != event.NameIssueComment {
		if r.log != nil {
			r.log.Info("ignoring unsupported event", "event_name", eventName)
		}
		return nil
	}

	eventPath := strings.TrimSpace(os.Getenv("GITHUB_EVENT_PATH"))
	if eventPath == "" {
		return fmt.Errorf("GITHUB_EVENT_PATH is required for %s events", eventName)
	}

	ev, err := event.ParseFile(eventName, eventPath)
	if err != nil {
		return fmt.Errorf("parse %s event: %w", eventName, err)
	}

	outcome, err := r.Handle(ctx, ev)
	if errors.Is(err, ErrIgnored) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.writeStepSummary(outcome.Result); err != nil && r.log != nil {
		r.log.Warn("failed to write step summary", "error", err)
	}
	if err := r.writeGitHubOutputs(outcome.Result); err != nil && r.log != nil {
		r.log.Warn("failed to write action outputs", "error", err)
	}

	if len(outcome.Failed) > 0 {
		return fmt.Errorf("cherry-pick failed for %d target(s): %s", len(outcome.Failed), strings.Join(outcome.Failed, ", "))
	}
	return nil
}

// Handle processes one decoded event. It returns ErrIgnored when the event cannot lead to
// a cherry-pick, so callers can tell "nothing to do" apart from a processed run.
func (r *Runner) Handle(ctx context.Context, ev event.Event) (Outcome, error) {
	repo := gh.Repo{Owner: ev.Repo().Owner, Name: ev.Repo().Name}
	outcome := Outcome{Event: ev.Name(), Repo: repo.String()}

	var process func(*orchestrator.Orchestrator) (orchestrator.Result, error)

	switch e := ev.(type) {
	case event.PullRequestEvent:
		if !e.Relevant() {
			r.ignore("ignoring unsupported pull_request action", "action", e.Action)
			return outcome, ErrIgnored
		}
		outcome.Number = e.PullRequest.Number
		process = func(o *orchestrator.Orchestrator) (orchestrator.Result, error) {
			return o.ProcessPullRequest(ctx, repo, e.PullRequest.Number)
		}
	case event.IssueCommentEvent:
		if e.Action != event.CommentActionCreated || !e.IsPullRequest || e.FromBot() {
			r.ignore("ignoring issue comment", "action", e.Action, "pull_request", e.IsPullRequest, "author", e.Comment.Author)
			return outcome, ErrIgnored
		}
		outcome.Number = e.IssueNumber
		process = func(o *orchestrator.Orchestrator) (orchestrator.Result, error) {
			return o.ProcessCommand(ctx, repo, e.IssueNumber, e.Comment.Author, e.Comment.Body)
		}
	default:
		return outcome, fmt.Errorf("%w: %s", event.ErrUnsupportedEvent, ev.Name())
	}

	ghClient, err := r.Client(ctx)
	if err != nil {
		return outcome, err
	}

	orch := orchestrator.New(r.cfg.orchestratorConfig(), ghClient, r.replayer, r.log)

	result, err := process(orch)
	if err != nil {
		return outcome, fmt.Errorf("process %s event for %s#%d: %w", ev.Name(), repo, outcome.Number, err)
	}
	outcome.Result = result

	// Comments without a command are ordinary conversation.
	if result.Skipped && result.SkippedReason == orchestrator.SkipNoCommand {
		r.ignore("ignoring comment without cherry-pick command", "number", outcome.Number)
		return outcome, ErrIgnored
	}

	if result.Skipped {
		if r.log != nil {
			r.log.Info("skipping cherry-pick orchestration", "reason", result.SkippedReason)
		}
	}

	for _, target := range result.Targets {
		if r.log != nil {
			r.log.Info("evaluated cherry-pick target", "branch", target.Target.Branch, "status", target.Status, "reason", target.Reason)
		}
		if target.Status == orchestrator.TargetStatusFailed || target.Status == orchestrator.TargetStatusConflict {
			outcome.Failed = append(outcome.Failed, target.Target.Branch)
		}
	}

	if err := upsertSummaryComment(ctx, ghClient, repo, outcome.Number, result); err != nil && r.log != nil {
		r.log.Warn("failed to post pull request comment", "error", err)
	}

	return outcome, nil
}

func (r *Runner) ignore(msg string, args ...any) {
	if r.log != nil {
		r.log.Info(msg, args...)
	}
}
