package app

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/rancher/cherry-pick-bot/internal/github"
	"github.com/rancher/cherry-pick-bot/internal/orchestrator"
)

const summaryCommentMarker = "<!-- cherry-pick-bot:summary -->"

func buildSummaryCommentBody(result orchestrator.Result) string {
	var b strings.Builder
	b.WriteString(summaryCommentMarker)
	b.WriteString("\n### Cherry-pick summary\n\n")
	b.WriteString(renderResultDetails(result))
	b.WriteString("\n_Automated by rancher/cherry-pick-bot._\n")
	return b.String()
}

// upsertSummaryComment keeps a single summary comment per pull request: it is created on
// the first run, rewritten on later runs, and left alone when nothing changed.
func upsertSummaryComment(ctx context.Context, client gh.Client, repo gh.Repo, number int, result orchestrator.Result) error {
	if client == nil || number <= 0 {
		return nil
	}

	body := buildSummaryCommentBody(result)

	comments, err := client.ListPullRequestComments(ctx, repo, number)
	if err != nil {
		return fmt.Errorf("list comments: %w", err)
	}

	for _, comment := range comments {
		if !strings.Contains(comment.Body, summaryCommentMarker) {
			continue
		}
		if comment.Body == body {
			return nil
		}
		if err := client.UpdateComment(ctx, repo, comment.ID, body); err != nil {
			return fmt.Errorf("update summary comment %d: %w", comment.ID, err)
		}
		return nil
	}

	if err := client.CommentOnPullRequest(ctx, repo, number, body); err != nil {
		return fmt.Errorf("create summary comment: %w", err)
	}
	return nil
}
