package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rancher/cherry-pick-bot/internal/orchestrator"
)

func (r *Runner) writeStepSummary(result orchestrator.Result) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_STEP_SUMMARY"))
	if path == "" {
		return nil
	}

	var builder strings.Builder
	builder.WriteString("## Cherry-pick summary\n\n")
	builder.WriteString(renderResultDetails(result))

	return r.appendFile(path, "step summary", func(w io.Writer) error {
		if _, err := io.WriteString(w, builder.String()); err != nil {
			return fmt.Errorf("write step summary: %w", err)
		}
		return nil
	})
}

func (r *Runner) writeGitHubOutputs(result orchestrator.Result) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_OUTPUT"))
	if path == "" {
		return nil
	}

	created := make([]outputCreatedPR, 0)
	skipped := make([]outputSkippedTarget, 0)

	for _, target := range result.Targets {
		switch target.Status {
		case orchestrator.TargetStatusSucceeded, orchestrator.TargetStatusPlaceholderPR:
			if target.CreatedPR != nil {
				out := outputCreatedPR{
					Branch: target.Target.Branch,
					Number: target.CreatedPR.Number,
					URL:    target.CreatedPR.URL,
					Head:   target.CreatedPR.Head,
					Base:   target.CreatedPR.Base,
				}
				for _, c := range target.Commits {
					out.Commits = append(out.Commits, c.SHA)
				}
				created = append(created, out)
			}
		case orchestrator.TargetStatusSkippedNoBranch,
			orchestrator.TargetStatusSkippedExistingPR,
			orchestrator.TargetStatusSkippedAlreadyPresent,
			orchestrator.TargetStatusFailed,
			orchestrator.TargetStatusConflict,
			orchestrator.TargetStatusDryRun:
			skipped = append(skipped, outputSkippedTarget{
				Branch: target.Target.Branch,
				Status: string(target.Status),
				Reason: target.Reason,
			})
		}
	}

	createdJSON, err := json.Marshal(created)
	if err != nil {
		return fmt.Errorf("marshal created_prs: %w", err)
	}

	skippedJSON, err := json.Marshal(skipped)
	if err != nil {
		return fmt.Errorf("marshal skipped_targets: %w", err)
	}

	summary := struct {
		Skipped       bool     `json:"skipped"`
		SkippedReason string   `json:"skipped_reason"`
		SourceCommits []string `json:"source_commits"`
	}{Skipped: result.Skipped, SkippedReason: result.SkippedReason, SourceCommits: result.SourceCommits}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run_summary: %w", err)
	}

	return r.appendFile(path, "github output", func(w io.Writer) error {
		if err := writeMultilineOutput(w, "created_prs", string(createdJSON)); err != nil {
			return err
		}
		if err := writeMultilineOutput(w, "skipped_targets", string(skippedJSON)); err != nil {
			return err
		}
		return writeMultilineOutput(w, "run_summary", string(summaryJSON))
	})
}

// appendFile opens path for appending, creating its directory when missing, and hands the
// file to write.
func (r *Runner) appendFile(path, what string, write func(io.Writer) error) error {
	// GitHub Actions normally creates the directory; a failure here is not fatal.
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil && r.log != nil {
			r.log.Warn("could not create directory", "path", dir, "error", mkErr)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", what, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && r.log != nil {
			r.log.Warn("failed to close file", "path", path, "error", closeErr)
		}
	}()

	return write(file)
}

func renderResultDetails(result orchestrator.Result) string {
	var builder strings.Builder

	if result.Skipped {
		reason := result.SkippedReason
		if reason == "" {
			reason = "run skipped"
		}
		builder.WriteString(fmt.Sprintf("Skipped cherry-pick orchestration: %s\n", sanitizeMarkdownCell(reason)))
		return builder.String()
	}

	if len(result.Targets) == 0 {
		builder.WriteString("No cherry-pick targets were evaluated.\n")
		return builder.String()
	}

	if n := len(result.SourceCommits); n > 1 {
		builder.WriteString(fmt.Sprintf("Replaying %d commits.\n\n", n))
	}

	builder.WriteString("| Branch | Status | Details | PR |\n")
	builder.WriteString("| --- | --- | --- | --- |\n")
	for _, target := range result.Targets {
		details := target.Reason
		if details == "" {
			details = "-"
		}

		prCell := "-"
		if target.CreatedPR != nil {
			if target.CreatedPR.URL != "" {
				prCell = fmt.Sprintf("[PR #%d](%s)", target.CreatedPR.Number, target.CreatedPR.URL)
			} else {
				prCell = fmt.Sprintf("PR #%d", target.CreatedPR.Number)
			}
		} else if target.ExistingPR != nil && target.ExistingPR.URL != "" {
			prCell = fmt.Sprintf("[Existing #%d](%s)", target.ExistingPR.Number, target.ExistingPR.URL)
		}

		builder.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			sanitizeMarkdownCell(target.Target.Branch),
			sanitizeMarkdownCell(string(target.Status)),
			sanitizeMarkdownCell(details),
			sanitizeMarkdownCell(prCell),
		))
	}

	return builder.String()
}

type outputCreatedPR struct {
	Branch  string   `json:"branch"`
	Number  int      `json:"number"`
	URL     string   `json:"url"`
	Head    string   `json:"head"`
	Base    string   `json:"base"`
	Commits []string `json:"commits,omitempty"`
}

type outputSkippedTarget struct {
	Branch string `json:"branch"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func writeMultilineOutput(w io.Writer, key, value string) error {
	if _, err := fmt.Fprintf(w, "%s<<EOF\n%s\nEOF\n", key, value); err != nil {
		return fmt.Errorf("write output %s: %w", key, err)
	}
	return nil
}

func sanitizeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", "<br>")
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}
