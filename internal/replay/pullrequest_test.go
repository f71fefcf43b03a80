package replay_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	gh "github.com/rancher/cherry-pick-bot/internal/github"
	"github.com/rancher/cherry-pick-bot/internal/replay"
)

var _ = Describe("Engine.ReplayAsPullRequest", func() {
	var (
		ctx     context.Context
		repo    gh.Repo
		remote  *fakeRemote
		engine  *replay.Engine
		commits []string
		branch  string
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = gh.Repo{Owner: "rancher", Name: "repo"}
		remote = newFakeRemote()
		remote.refs["target-branch"] = "devbranchsha"
		remote.addCommit(gh.Commit{SHA: "devbranchsha", Message: "head", TreeSHA: "devtree"})
		remote.addCommit(gh.Commit{SHA: "abc123", Message: "commit message for abc123", TreeSHA: "abctree", Parents: []string{"parentsha"}})
		remote.addCommit(gh.Commit{SHA: "def234", Message: "commit message for def234", TreeSHA: "deftree", Parents: []string{"abc123"}})

		engine = replay.New(remote, remote, nil)
		commits = []string{"abc123", "def234"}
		branch = gh.BranchNameForReplay(commits, "target-branch")
	})

	It("replays onto a derived branch and opens a pull request into the target", func() {
		pr, err := engine.ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{})
		Expect(err).NotTo(HaveOccurred())

		Expect(pr.Number).To(Equal(101))
		Expect(pr.Head).To(Equal(branch))
		Expect(pr.Base).To(Equal("target-branch"))
		Expect(pr.Title).To(Equal("commit message for abc123"))
		Expect(pr.Body).To(Equal("commit message for def234"))
		Expect(pr.Commits).To(HaveLen(2))
		Expect(pr.Reused).To(BeFalse())

		Expect(remote.refs["target-branch"]).To(Equal("devbranchsha"))
		Expect(remote.refs[branch]).To(Equal(pr.Commits[1].SHA))
		Expect(remote.refs).NotTo(HaveKey(gh.ScratchBranchName(branch)))

		Expect(remote.createdPRs).To(HaveLen(1))
		Expect(remote.createdPRs[0].MaintainerCanModify).To(BeTrue())
	})

	It("reuses the open pull request when run again with the same commits", func() {
		first, err := engine.ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{})
		Expect(err).NotTo(HaveOccurred())

		second, err := engine.ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Reused).To(BeTrue())
		Expect(second.Number).To(Equal(first.Number))
		Expect(second.Head).To(Equal(first.Head))
		Expect(remote.createdPRs).To(HaveLen(1))
		Expect(remote.called("update-ref " + branch + " devbranchsha")).To(HaveLen(1))
	})

	It("applies title, preamble, and labels from the options", func() {
		pr, err := engine.ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{
			Title:    "[release/v2.9] backport",
			Preamble: "Backport of #42",
			Labels:   []string{"backport"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(pr.Title).To(Equal("[release/v2.9] backport"))
		Expect(pr.Body).To(Equal("Backport of #42\n\ncommit message for def234"))
		Expect(remote.createdPRs[0].Labels).To(Equal([]string{"backport"}))
	})

	It("drops the derived branch when the replay fails", func() {
		remote.conflicts["abc123"] = true

		_, err := engine.ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{})
		Expect(replay.IsMergeConflict(err)).To(BeTrue())
		Expect(remote.refs).NotTo(HaveKey(branch))
		Expect(remote.createdPRs).To(BeEmpty())
	})

	It("restores the branch of an open pull request when a rerun fails", func() {
		first, err := engine.ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{})
		Expect(err).NotTo(HaveOccurred())
		tip := remote.refs[branch]
		Expect(tip).To(Equal(first.Commits[1].SHA))

		remote.conflicts["abc123"] = true
		_, err = engine.ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{})
		Expect(replay.IsMergeConflict(err)).To(BeTrue())

		Expect(remote.refs).To(HaveKeyWithValue(branch, tip))
		Expect(remote.called("delete-ref " + branch)).To(BeEmpty())
		Expect(remote.openPRs).To(HaveLen(1))
		Expect(remote.openPRs[0].Head).To(Equal(branch))
	})

	It("leaves the branch alone when a source commit cannot be resolved", func() {
		_, err := engine.ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{})
		Expect(err).NotTo(HaveOccurred())
		tip := remote.refs[branch]
		remote.calls = nil

		delete(remote.commits, "def234")
		_, err = engine.ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{})
		Expect(replay.KindOf(err)).To(Equal(replay.KindNotFound))

		Expect(remote.refs).To(HaveKeyWithValue(branch, tip))
		Expect(remote.called("create-")).To(BeEmpty())
		Expect(remote.called("update-")).To(BeEmpty())
		Expect(remote.called("delete-")).To(BeEmpty())
	})

	It("returns pull request creation failures", func() {
		remote.createPRErr = errors.New("validation failed")

		_, err := engine.ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{})
		Expect(err).To(MatchError(ContainSubstring("create pull request")))
	})

	It("requires a pull request client", func() {
		_, err := replay.New(remote, nil, nil).ReplayAsPullRequest(ctx, repo, commits, "target-branch", replay.PullRequestOptions{})
		Expect(err).To(HaveOccurred())
		Expect(remote.calls).To(BeEmpty())
	})

	It("rejects an empty commit list", func() {
		_, err := engine.ReplayAsPullRequest(ctx, repo, nil, "target-branch", replay.PullRequestOptions{})
		Expect(err).To(MatchError(replay.ErrNoCommits))
	})
})

var _ = Describe("Engine.PlaceholderPullRequest", func() {
	It("opens a pull request holding one empty commit on the target head", func() {
		ctx := context.Background()
		repo := gh.Repo{Owner: "rancher", Name: "repo"}
		remote := newFakeRemote()
		remote.refs["release/v2.9"] = "devbranchsha"
		remote.addCommit(gh.Commit{SHA: "devbranchsha", TreeSHA: "devtree"})

		engine := replay.New(remote, remote, nil)
		pr, err := engine.PlaceholderPullRequest(ctx, repo, []string{"abc123"}, "release/v2.9",
			"Cherry-pick of #42 needs manual resolution\n\nabc123 conflicted", replay.PullRequestOptions{Preamble: "Resolve locally"})
		Expect(err).NotTo(HaveOccurred())

		Expect(remote.created).To(HaveLen(1))
		Expect(remote.created[0].TreeSHA).To(Equal("devtree"))
		Expect(remote.created[0].Parents).To(Equal([]string{"devbranchsha"}))

		branch := gh.BranchNameForReplay([]string{"abc123"}, "release/v2.9")
		Expect(pr.Head).To(Equal(branch))
		Expect(pr.Base).To(Equal("release/v2.9"))
		Expect(pr.Title).To(Equal("Cherry-pick of #42 needs manual resolution"))
		Expect(pr.Body).To(Equal("Resolve locally"))
		Expect(remote.refs[branch]).To(Equal("newcommitsha1"))
		Expect(remote.refs["release/v2.9"]).To(Equal("devbranchsha"))
	})
})

var _ = Describe("Describe", func() {
	It("uses the first subject as title and folds the remaining messages into the body", func() {
		title, body := replay.Describe([]replay.Commit{
			{Message: "Fix the widget\n\nThe widget was broken.", SHA: "a"},
			{Message: "Add widget tests", SHA: "b"},
		})
		Expect(title).To(Equal("Fix the widget"))
		Expect(body).To(Equal("The widget was broken.\n\nAdd widget tests"))
	})

	It("returns an empty body for a single one-line commit", func() {
		title, body := replay.Describe([]replay.Commit{{Message: "Bump version", SHA: "a"}})
		Expect(title).To(Equal("Bump version"))
		Expect(body).To(BeEmpty())
	})

	It("handles an empty list", func() {
		title, body := replay.Describe(nil)
		Expect(title).To(BeEmpty())
		Expect(body).To(BeEmpty())
	})
})
