package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/go-github/v55/github"
)

// PullRequestAction enumerates actions we care about from pull_request events.
type PullRequestAction string

const (
	PullRequestActionClosed  PullRequestAction = "closed"
	PullRequestActionLabeled PullRequestAction = "labeled"
)

// PullRequestEvent is a decoded pull_request webhook.
type PullRequestEvent struct {
	Action      PullRequestAction
	Repository  Repository
	PullRequest PullRequest
	LabelName   string
	Sender      string
}

// PullRequest includes the metadata required for cherry-pick orchestration.
type PullRequest struct {
	Number         int
	Labels         []string
	Merged         bool
	MergeCommitSHA string
	HeadSHA        string
	BaseRef        string
	Title          string
	Body           string
	Assignees      []string
}

func (PullRequestEvent) Name() string { return NamePullRequest }

func (e PullRequestEvent) Repo() Repository { return e.Repository }

func (e PullRequestEvent) validate() error {
	if err := e.Repository.validate(); err != nil {
		return err
	}
	if e.PullRequest.Number <= 0 {
		return errors.New("pull request number is required")
	}
	return nil
}

// Relevant reports whether the action can lead to a cherry-pick.
func (e PullRequestEvent) Relevant() bool {
	return e.Action == PullRequestActionClosed || e.Action == PullRequestActionLabeled
}

// ParsePullRequestEvent decodes a GitHub pull_request event payload from the provided reader.
func ParsePullRequestEvent(r io.Reader) (PullRequestEvent, error) {
	var raw github.PullRequestEvent

	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return PullRequestEvent{}, fmt.Errorf("decode pull_request event: %w", err)
	}

	pr := raw.GetPullRequest()
	if pr == nil {
		return PullRequestEvent{}, errors.New("pull_request object is required")
	}
	ev := PullRequestEvent{
		Action:     PullRequestAction(strings.ToLower(strings.TrimSpace(raw.GetAction()))),
		Repository: repositoryFrom(raw.GetRepo()),
		PullRequest: PullRequest{
			Number:         pr.GetNumber(),
			Merged:         pr.GetMerged(),
			MergeCommitSHA: strings.TrimSpace(pr.GetMergeCommitSHA()),
			HeadSHA:        strings.TrimSpace(pr.GetHead().GetSHA()),
			BaseRef:        strings.TrimSpace(pr.GetBase().GetRef()),
			Title:          pr.GetTitle(),
			Body:           pr.GetBody(),
		},
		Sender: strings.TrimSpace(raw.GetSender().GetLogin()),
	}

	for _, l := range pr.Labels {
		if name := strings.TrimSpace(l.GetName()); name != "" {
			ev.PullRequest.Labels = append(ev.PullRequest.Labels, name)
		}
	}

	for _, a := range pr.Assignees {
		if login := strings.TrimSpace(a.GetLogin()); login != "" {
			ev.PullRequest.Assignees = append(ev.PullRequest.Assignees, login)
		}
	}

	if raw.Label != nil {
		ev.LabelName = strings.TrimSpace(raw.Label.GetName())
	}

	return ev, nil
}

func repositoryFrom(repo *github.Repository) Repository {
	return Repository{
		Owner: strings.TrimSpace(repo.GetOwner().GetLogin()),
		Name:  strings.TrimSpace(repo.GetName()),
	}
}
