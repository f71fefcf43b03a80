package gh

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

var disallowedBranchChars = regexp.MustCompile(`[^a-zA-Z0-9._/-]+`)

// BranchNamingOptions controls how replay branch names are generated.
type BranchNamingOptions struct {
	Prefix            string
	MaxLength         int
	HashLength        int
	SanitizeEmptyWith string
}

var defaultBranchNaming = BranchNamingOptions{
	Prefix:            "cherry-pick",
	MaxLength:         63,
	HashLength:        8,
	SanitizeEmptyWith: "target",
}

// ScratchBranchName returns the temporary branch used to sequence a replay onto target.
func ScratchBranchName(target string) string {
	return "temp-" + target
}

// ReplayHash returns the hex digest identifying a commit list replayed onto target.
// The same inputs always produce the same digest.
func ReplayHash(commits []string, target string, length int) string {
	if length <= 0 {
		length = defaultBranchNaming.HashLength
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(commits, ",")))
	_, _ = h.Write([]byte(target))
	hex := fmt.Sprintf("%016x", h.Sum64())
	if length < len(hex) {
		hex = hex[:length]
	}
	return hex
}

// BranchNameForReplay computes the branch that receives the replayed commits before a
// pull request is opened against target. The name is derived from a hash of the commit
// list plus the target branch, so repeated requests for the same commits reuse it.
func BranchNameForReplay(commits []string, target string, opts ...BranchNamingOptions) string {
	config := defaultBranchNaming
	if len(opts) > 0 {
		o := opts[0]
		if o.Prefix != "" {
			config.Prefix = o.Prefix
		}
		if o.MaxLength > 0 {
			config.MaxLength = o.MaxLength
		}
		if o.HashLength > 0 {
			config.HashLength = o.HashLength
		}
		if o.SanitizeEmptyWith != "" {
			config.SanitizeEmptyWith = o.SanitizeEmptyWith
		}
	}

	digest := ReplayHash(commits, target, config.HashLength)
	sanitized := sanitizeBranchSegment(target, config)
	branch := fmt.Sprintf("%s/%s/%s", config.Prefix, sanitized, digest)

	if len(branch) <= config.MaxLength {
		return branch
	}

	available := config.MaxLength - len(config.Prefix) - 1 - len(digest) - 1
	if available < 1 {
		return fmt.Sprintf("%s/%s", config.Prefix, digest)
	}

	return fmt.Sprintf("%s/%s/%s", config.Prefix, truncateSegment(sanitized, available, config), digest)
}

func sanitizeBranchSegment(segment string, config BranchNamingOptions) string {
	segment = strings.TrimSpace(segment)
	segment = strings.ReplaceAll(segment, " ", "-")
	segment = disallowedBranchChars.ReplaceAllString(segment, "-")
	segment = strings.Trim(segment, "-/.")

	if segment == "" {
		segment = config.SanitizeEmptyWith
	}

	segment = strings.ToLower(segment)
	segment = strings.ReplaceAll(segment, "-/-", "/")
	for strings.Contains(segment, "//") {
		segment = strings.ReplaceAll(segment, "//", "/")
	}
	for strings.Contains(segment, "--") {
		segment = strings.ReplaceAll(segment, "--", "-")
	}
	segment = strings.Trim(segment, "-")

	if segment == "" {
		segment = config.SanitizeEmptyWith
	}

	return segment
}

// truncateSegment cuts the target portion down to the available width.
func truncateSegment(segment string, available int, config BranchNamingOptions) string {
	if len(segment) <= available {
		return segment
	}

	segment = strings.TrimRight(segment[:available], "-./")
	if segment == "" {
		fallback := config.SanitizeEmptyWith
		if len(fallback) > available {
			fallback = fallback[:available]
		}
		return fallback
	}
	return segment
}
