package targets_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/cherry-pick-bot/internal/targets"
)

var _ = Describe("Targets", func() {
	Describe("FromLabels", func() {
		It("extracts unique branches matching the prefix", func() {
			labelNames := []string{
				"enhancement",
				"cherry-pick/release/v0.25",
				"Cherry-Pick/release/v0.24",
				"cherry-pick/release/v0.25",
				"cherry-pick/",
				"cherry-pick/release/v0.24 ",
			}

			got, err := targets.FromLabels(labelNames, "cherry-pick/")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0]).To(Equal(targets.Target{Branch: "release/v0.25", Origin: "cherry-pick/release/v0.25", Source: targets.SourceLabel}))
			Expect(got[1].Branch).To(Equal("release/v0.24"))
			Expect(got[1].Origin).To(Equal("Cherry-Pick/release/v0.24"))
		})

		It("keeps nested branch paths", func() {
			got, err := targets.FromLabels([]string{"cherry-pick/feature/foo/bar", "cherry-pick/main"}, "cherry-pick/")
			Expect(err).NotTo(HaveOccurred())
			Expect(targets.Branches(got)).To(Equal([]string{"feature/foo/bar", "main"}))
		})

		It("normalizes refs prefix and stray slashes", func() {
			got, err := targets.FromLabels([]string{"cherry-pick/ refs/heads/release/v0.30//"}, "cherry-pick/")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].Branch).To(Equal("release/v0.30"))
		})

		It("returns an error when the prefix is empty", func() {
			_, err := targets.FromLabels([]string{"cherry-pick/release"}, " ")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("FromBranches", func() {
		It("normalizes configured branches and drops blanks", func() {
			got := targets.FromBranches([]string{" release/v2.9 ", "", "refs/heads/main"}, targets.SourceConfig)
			Expect(got).To(HaveLen(2))
			Expect(got[0].Branch).To(Equal("release/v2.9"))
			Expect(got[1].Branch).To(Equal("main"))
			Expect(got[1].Source).To(Equal(targets.SourceConfig))
		})
	})

	Describe("Validate", func() {
		It("accepts valid branch names", func() {
			Expect(targets.Validate([]targets.Target{
				{Branch: "release/v0.25"},
				{Branch: "release/v2.9/security"},
				{Branch: "2.1.x"},
			})).To(Succeed())
		})

		DescribeTable("rejects invalid branch names",
			func(branch string) {
				err := targets.Validate([]targets.Target{{Branch: branch, Origin: "bad", Source: targets.SourceLabel}})
				Expect(err).To(MatchError(ContainSubstring(branch)))
			},
			Entry("whitespace", "feature with space"),
			Entry("double dot", "feature..bad"),
			Entry("tilde", "feature~bad"),
			Entry("caret", "feature^bad"),
			Entry("colon", "feature:bad"),
			Entry("lock suffix", "feature.lock"),
		)

		It("rejects an empty branch", func() {
			Expect(targets.ValidateBranch("")).NotTo(Succeed())
		})
	})

	Describe("Merge", func() {
		It("deduplicates branches while preserving first-seen order", func() {
			a := []targets.Target{{Origin: "a", Branch: "release/v0.26"}}
			b := []targets.Target{{Origin: "b", Branch: "release/v0.25"}, {Origin: "c", Branch: "release/v0.26"}}

			merged := targets.Merge(a, b)
			Expect(merged).To(HaveLen(2))
			Expect(merged[0].Origin).To(Equal("a"))
			Expect(merged[1].Branch).To(Equal("release/v0.25"))
		})
	})

	Describe("Branches", func() {
		It("returns a sorted, deduplicated slice", func() {
			branches := targets.Branches([]targets.Target{
				{Branch: "release/v0.26"},
				{Branch: "release/v0.24"},
				{Branch: "release/v0.25"},
				{Branch: "release/v0.24"},
			})
			Expect(branches).To(Equal([]string{"release/v0.24", "release/v0.25", "release/v0.26"}))
		})
	})

	Describe("NormalizeBranch", func() {
		It("strips refs/heads prefix, whitespace, and surrounding slashes", func() {
			Expect(targets.NormalizeBranch(" /refs/heads/release/v0.31/ ")).To(Equal("release/v0.31"))
		})

		It("returns empty string when nothing is left", func() {
			Expect(targets.NormalizeBranch(" // ")).To(BeEmpty())
		})
	})
})
