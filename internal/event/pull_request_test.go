package event_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/cherry-pick-bot/internal/event"
)

var _ = Describe("ParsePullRequestEvent", func() {
	const sample = `{
		"action": "labeled",
		"label": {"name": "cherry-pick/release/v0.25"},
		"repository": {
			"name": "cherry-pick-bot",
			"owner": {"login": "rancher"}
		},
		"sender": {"login": "maintainer"},
		"pull_request": {
			"number": 123,
			"merged": true,
			"merge_commit_sha": "abc123",
			"title": "Fix bug",
			"body": "Body text",
			"head": {"sha": "def456"},
			"base": {"ref": "main"},
			"labels": [
				{"name": "cherry-pick/release/v0.25"},
				{"name": "kind/bug"}
			],
			"assignees": [
				{"login": "alice"},
				{"login": "bob"}
			]
		}
	}`

	It("parses repository and pull request details", func() {
		payload, err := event.ParsePullRequestEvent(strings.NewReader(sample))
		Expect(err).NotTo(HaveOccurred())

		Expect(payload.Action).To(Equal(event.PullRequestActionLabeled))
		Expect(payload.Repository).To(Equal(event.Repository{Owner: "rancher", Name: "cherry-pick-bot"}))
		Expect(payload.Sender).To(Equal("maintainer"))

		pr := payload.PullRequest
		Expect(pr.Number).To(Equal(123))
		Expect(pr.Merged).To(BeTrue())
		Expect(pr.MergeCommitSHA).To(Equal("abc123"))
		Expect(pr.HeadSHA).To(Equal("def456"))
		Expect(pr.BaseRef).To(Equal("main"))
		Expect(pr.Title).To(Equal("Fix bug"))
		Expect(pr.Body).To(Equal("Body text"))
		Expect(pr.Labels).To(ConsistOf("cherry-pick/release/v0.25", "kind/bug"))
		Expect(pr.Assignees).To(ConsistOf("alice", "bob"))
		Expect(payload.LabelName).To(Equal("cherry-pick/release/v0.25"))
		Expect(payload.Relevant()).To(BeTrue())
	})

	It("normalizes empty fields", func() {
		payload, err := event.ParsePullRequestEvent(strings.NewReader(`{"action":"CLOSED","repository":{"name":"repo","owner":{"login":"ORG"}},"pull_request":{"number":1,"merged":false,"head":{"sha":""}}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(payload.Action).To(Equal(event.PullRequestActionClosed))
		Expect(payload.Repository.Owner).To(Equal("ORG"))
		Expect(payload.PullRequest.Labels).To(BeEmpty())
	})

	It("marks other actions as irrelevant", func() {
		payload, err := event.ParsePullRequestEvent(strings.NewReader(`{"action":"opened","repository":{"name":"repo","owner":{"login":"org"}},"pull_request":{"number":1}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(payload.Relevant()).To(BeFalse())
	})

	It("rejects malformed JSON", func() {
		_, err := event.ParsePullRequestEvent(strings.NewReader(`{"action":`))
		Expect(err).To(MatchError(ContainSubstring("decode pull_request event")))
	})
})
