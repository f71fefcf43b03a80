package targets_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/cherry-pick-bot/internal/targets"
)

var _ = Describe("ParseCommand", func() {
	DescribeTable("parses the target branch",
		func(body, want string) {
			branch, ok := targets.ParseCommand(body)
			Expect(ok).To(BeTrue())
			Expect(branch).To(Equal(want))
		},
		Entry("dotted version", "/cherry-pick 2.1.x", "2.1.x"),
		Entry("extra spacing", "  /cherry-pick   release-2.8  ", "release-2.8"),
		Entry("nested branch", "/cherry-pick release/v2.9", "release/v2.9"),
		Entry("trailing text", "/cherry-pick main please", "main"),
		Entry("command on a later line", "Looks good.\n/cherry-pick 2.1.x\nthanks", "2.1.x"),
		Entry("first command wins", "/cherry-pick 2.1.x\n/cherry-pick 2.2.x", "2.1.x"),
		Entry("windows line endings", "lgtm\r\n/cherry-pick 2.1.x\r\n", "2.1.x"),
		Entry("sentence-final period", "/cherry-pick 2.1.x.", "2.1.x"),
		Entry("period after nested branch", "Please backport.\n/cherry-pick release/v2.9. Thanks", "release/v2.9"),
	)

	DescribeTable("finds no command",
		func(body string) {
			branch, ok := targets.ParseCommand(body)
			Expect(ok).To(BeFalse())
			Expect(branch).To(BeEmpty())
		},
		Entry("plain text", "cherry-pick 2.1.x"),
		Entry("empty", ""),
		Entry("command without branch", "/cherry-pick"),
		Entry("command not at line start", "please /cherry-pick 2.1.x"),
		Entry("different command", "/cherry-picked 2.1.x"),
		Entry("token not word-leading", "/cherry-pick .hidden"),
	)

	It("wraps the branch into a command target", func() {
		target, ok := targets.FromCommand("/cherry-pick 2.1.x")
		Expect(ok).To(BeTrue())
		Expect(target).To(Equal(targets.Target{Branch: "2.1.x", Origin: "/cherry-pick 2.1.x", Source: targets.SourceCommand}))
	})
})
