package targets

import (
	"regexp"
	"strings"
)

// commandPattern matches "/cherry-pick <branch>" at the start of a line. The branch is a
// word-leading token of letters, digits, '.', '-', '_' and '/'.
var commandPattern = regexp.MustCompile(`^/cherry-pick\s+(\w[\w.\-/]*)`)

// ParseCommand returns the target branch of the first /cherry-pick command in body.
// A trailing period ends the sentence, not the branch. ok is false when the body
// carries no command.
func ParseCommand(body string) (branch string, ok bool) {
	for _, line := range strings.Split(body, "\n") {
		m := commandPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if branch = NormalizeBranch(strings.TrimRight(m[1], "./")); branch != "" {
			return branch, true
		}
	}
	return "", false
}

// FromCommand wraps ParseCommand into a Target.
func FromCommand(body string) (Target, bool) {
	branch, ok := ParseCommand(body)
	if !ok {
		return Target{}, false
	}
	return Target{Branch: branch, Origin: "/cherry-pick " + branch, Source: SourceCommand}, true
}
