package orchestrator

import (
	"fmt"
	"strings"

	gh "github.com/rancher/cherry-pick-bot/internal/github"
	"github.com/rancher/cherry-pick-bot/internal/replay"
	"github.com/rancher/cherry-pick-bot/internal/targets"
)

func (o *Orchestrator) pullRequestOptions(pr gh.PRMetadata, target targets.Target) replay.PullRequestOptions {
	var body strings.Builder
	body.WriteString(metadataComment(pr, target))
	body.WriteString("\n")
	fmt.Fprintf(&body, "Cherry pick of #%d into `%s`.\n\n", pr.Number, target.Branch)
	if pr.Body != "" {
		body.WriteString(pr.Body)
		body.WriteString("\n\n")
	}
	body.WriteString("--\n")
	body.WriteString("Automated cherry-pick by rancher/cherry-pick-bot.")

	title := pr.Title
	if title != "" {
		title = fmt.Sprintf("[%s] %s", target.Branch, title)
	}

	return replay.PullRequestOptions{
		Title:     title,
		Preamble:  body.String(),
		Labels:    filterCherryPickLabels(pr.Labels, o.cfg.LabelPrefix),
		Assignees: pr.Assignees,
	}
}

func decoratePlaceholderBody(original string, number int, branch string, conflict error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Automated cherry-pick of #%d into `%s` encountered conflicts.\n\n", number, branch)
	b.WriteString("Please resolve the conflicts manually and push to this branch.\n\n")
	if msg := strings.TrimSpace(conflict.Error()); msg != "" {
		b.WriteString("The replay reported:\n\n```\n")
		b.WriteString(msg)
		b.WriteString("\n```\n\n")
	}
	b.WriteString(original)
	return b.String()
}

func filterCherryPickLabels(all []string, prefix string) []string {
	if len(all) == 0 {
		return nil
	}

	prefix = strings.ToLower(strings.TrimSpace(prefix))
	out := make([]string, 0, len(all))
	for _, label := range all {
		if prefix != "" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(label)), prefix) {
			continue
		}
		out = append(out, label)
	}
	return out
}

func metadataComment(pr gh.PRMetadata, target targets.Target) string {
	source := strings.TrimSpace(pr.Repo)
	if owner := strings.TrimSpace(pr.Owner); owner != "" && source != "" {
		source = owner + "/" + source
	} else if source == "" {
		source = "unknown-repo"
	}
	return fmt.Sprintf("<!-- cherry-pick-of: %s#%d -> %s -->", source, pr.Number, target.Branch)
}
