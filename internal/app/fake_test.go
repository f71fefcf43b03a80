package app

import (
	"context"
	"fmt"

	gh "github.com/rancher/cherry-pick-bot/internal/github"
	"github.com/rancher/cherry-pick-bot/internal/replay"
)

type fakeFactory struct {
	client *fakeClient
}

func (f *fakeFactory) New(context.Context, string) (gh.Client, error) {
	return f.client, nil
}

type fakeClient struct {
	pr            gh.PRMetadata
	permissions   map[string]string
	comments      []gh.IssueComment
	createdBodies []string
	updatedBodies map[int64]string
	addedLabels   []string
	prCalls       int
}

func (c *fakeClient) GetPullRequest(context.Context, gh.Repo, int) (gh.PRMetadata, error) {
	c.prCalls++
	return c.pr, nil
}

func (c *fakeClient) ListPullRequestCommits(context.Context, gh.Repo, int) ([]string, error) {
	return []string{c.pr.HeadSHA}, nil
}

func (c *fakeClient) GetCommit(_ context.Context, _ gh.Repo, sha string) (gh.Commit, error) {
	return gh.Commit{SHA: sha, Parents: []string{"parent-of-" + sha}}, nil
}

func (c *fakeClient) GetBranchHead(context.Context, gh.Repo, string) (string, error) {
	panic("not implemented")
}

func (c *fakeClient) CreateCommit(context.Context, gh.Repo, gh.NewCommit) (gh.Commit, error) {
	panic("not implemented")
}

func (c *fakeClient) CreateRef(context.Context, gh.Repo, string, string) error {
	panic("not implemented")
}

func (c *fakeClient) UpdateRef(context.Context, gh.Repo, string, string, bool) error {
	panic("not implemented")
}

func (c *fakeClient) DeleteRef(context.Context, gh.Repo, string) error {
	panic("not implemented")
}

func (c *fakeClient) Merge(context.Context, gh.Repo, string, string, string) (gh.MergeResult, error) {
	panic("not implemented")
}

func (c *fakeClient) ListCherryPickPRs(context.Context, gh.Repo, string, string) ([]gh.CherryPickPR, error) {
	return nil, nil
}

func (c *fakeClient) CreatePullRequest(context.Context, gh.Repo, gh.CreatePROptions) (gh.CherryPickPR, error) {
	panic("not implemented")
}

func (c *fakeClient) EnsureBranchExists(context.Context, gh.Repo, string) error {
	return nil
}

func (c *fakeClient) CommentOnPullRequest(_ context.Context, _ gh.Repo, _ int, body string) error {
	c.createdBodies = append(c.createdBodies, body)
	return nil
}

func (c *fakeClient) ListPullRequestComments(context.Context, gh.Repo, int) ([]gh.IssueComment, error) {
	return c.comments, nil
}

func (c *fakeClient) UpdateComment(_ context.Context, _ gh.Repo, commentID int64, body string) error {
	if c.updatedBodies == nil {
		c.updatedBodies = make(map[int64]string)
	}
	c.updatedBodies[commentID] = body
	return nil
}

func (c *fakeClient) CommitExistsOnBranch(context.Context, gh.Repo, string, string) (bool, error) {
	return false, nil
}

func (c *fakeClient) HasLabel(context.Context, gh.Repo, int, string) (bool, error) {
	return false, nil
}

func (c *fakeClient) AddLabel(_ context.Context, _ gh.Repo, _ int, label string) error {
	c.addedLabels = append(c.addedLabels, label)
	return nil
}

func (c *fakeClient) GetPermissionLevel(_ context.Context, _ gh.Repo, username string) (string, error) {
	if level, ok := c.permissions[username]; ok {
		return level, nil
	}
	return gh.PermissionNone, nil
}

type fakeReplayer struct {
	targets []string
	err     error
}

func (f *fakeReplayer) ReplayAsPullRequest(_ context.Context, _ gh.Repo, commits []string, target string, opts replay.PullRequestOptions) (replay.PullRequest, error) {
	f.targets = append(f.targets, target)
	if f.err != nil {
		return replay.PullRequest{}, f.err
	}
	n := 100 + len(f.targets)
	return replay.PullRequest{
		Number:  n,
		URL:     fmt.Sprintf("https://github.com/rancher/repo/pull/%d", n),
		Title:   opts.Title,
		Head:    gh.BranchNameForReplay(commits, target),
		Base:    target,
		Commits: []replay.Commit{{Message: "replayed", SHA: "replayedsha"}},
	}, nil
}

func (f *fakeReplayer) PlaceholderPullRequest(context.Context, gh.Repo, []string, string, string, replay.PullRequestOptions) (replay.PullRequest, error) {
	panic("not implemented")
}

func mergedPR() gh.PRMetadata {
	return gh.PRMetadata{
		Owner:     "rancher",
		Repo:      "repo",
		Number:    42,
		Title:     "Improve feature",
		Body:      "Original PR body",
		MergeSHA:  "abc123",
		HeadSHA:   "def456",
		Labels:    []string{"cherry-pick/release/v0.25"},
		Assignees: []string{"alice"},
		IsMerged:  true,
	}
}
