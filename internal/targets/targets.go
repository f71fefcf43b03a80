// Package targets resolves the branches a change should be replayed onto, either from
// pull request labels, configured overrides, or a /cherry-pick comment command.
package targets

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Source records where a target came from.
type Source string

const (
	SourceLabel   Source = "label"
	SourceConfig  Source = "config"
	SourceCommand Source = "command"
)

// Target is a branch a change should be replayed onto.
type Target struct {
	Branch string
	// Origin is the label name, or the raw input, the branch was derived from.
	Origin string
	Source Source
}

var errEmptyPrefix = errors.New("label prefix cannot be empty")

// FromLabels extracts targets from the label names that match prefix. Matching is case
// insensitive and results are deduplicated by branch in first-seen order.
func FromLabels(labelNames []string, prefix string) ([]Target, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errEmptyPrefix
	}

	out := make([]Target, 0, len(labelNames))
	seen := make(map[string]struct{})

	for _, name := range labelNames {
		branch, ok := branchFromLabel(name, prefix)
		if !ok {
			continue
		}
		if _, dup := seen[branch]; dup {
			continue
		}
		seen[branch] = struct{}{}
		out = append(out, Target{Branch: branch, Origin: name, Source: SourceLabel})
	}

	return out, nil
}

// FromBranches turns configured branch names into targets, dropping blanks.
func FromBranches(branches []string, source Source) []Target {
	out := make([]Target, 0, len(branches))
	for _, raw := range branches {
		branch := NormalizeBranch(raw)
		if branch == "" {
			continue
		}
		out = append(out, Target{Branch: branch, Origin: raw, Source: source})
	}
	return out
}

func branchFromLabel(labelName, prefix string) (string, bool) {
	labelName = strings.TrimSpace(labelName)
	if len(labelName) < len(prefix) || !strings.EqualFold(labelName[:len(prefix)], prefix) {
		return "", false
	}

	branch := NormalizeBranch(labelName[len(prefix):])
	return branch, branch != ""
}

// Validate rejects branch names git would refuse or that could be abused in a ref path.
func Validate(targets []Target) error {
	for _, t := range targets {
		if err := ValidateBranch(t.Branch); err != nil {
			return fmt.Errorf("invalid branch %q from %s %q: %w", t.Branch, t.Source, t.Origin, err)
		}
	}
	return nil
}

// ValidateBranch checks a single branch name.
func ValidateBranch(branch string) error {
	switch {
	case branch == "":
		return errors.New("branch cannot be empty")
	case strings.ContainsAny(branch, " \t\n\r"):
		return errors.New("branch cannot contain whitespace")
	case strings.Contains(branch, ".."):
		return errors.New("branch cannot contain '..'")
	case strings.ContainsAny(branch, "~^:?*[]@{\\"):
		return errors.New("branch contains forbidden git characters")
	case strings.HasSuffix(branch, ".lock"), strings.HasSuffix(branch, "."):
		return errors.New("branch cannot end with '.lock' or '.'")
	}
	return nil
}

// Merge concatenates target groups, keeping the first occurrence of every branch.
func Merge(groups ...[]Target) []Target {
	out := make([]Target, 0)
	seen := make(map[string]struct{})

	for _, group := range groups {
		for _, t := range group {
			if _, ok := seen[t.Branch]; ok {
				continue
			}
			seen[t.Branch] = struct{}{}
			out = append(out, t)
		}
	}

	return out
}

// Branches returns the sorted, deduplicated branch names of targets.
func Branches(targets []Target) []string {
	branches := make([]string, 0, len(targets))
	for _, t := range targets {
		branches = append(branches, t.Branch)
	}
	slices.Sort(branches)
	return slices.Compact(branches)
}

const headsPrefix = "refs/heads/"

// NormalizeBranch trims whitespace and surrounding slashes and strips a refs/heads/
// prefix. It returns "" when nothing is left.
func NormalizeBranch(branch string) string {
	branch = strings.Trim(strings.TrimSpace(branch), "/")

	if len(branch) >= len(headsPrefix) && strings.EqualFold(branch[:len(headsPrefix)], headsPrefix) {
		branch = branch[len(headsPrefix):]
	}

	return strings.TrimSpace(strings.Trim(branch, "/"))
}
