package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/go-github/v55/github"
)

// CommentAction enumerates issue_comment actions.
type CommentAction string

const CommentActionCreated CommentAction = "created"

// IssueCommentEvent is a decoded issue_comment webhook. GitHub delivers pull request
// conversation comments through this event as well; IsPullRequest tells them apart.
type IssueCommentEvent struct {
	Action        CommentAction
	Repository    Repository
	IssueNumber   int
	IsPullRequest bool
	Comment       Comment
}

// Comment is the comment that triggered the event.
type Comment struct {
	ID     int64
	Body   string
	Author string
	// AuthorType is "User" or "Bot".
	AuthorType string
}

func (IssueCommentEvent) Name() string { return NameIssueComment }

func (e IssueCommentEvent) Repo() Repository { return e.Repository }

func (e IssueCommentEvent) validate() error {
	if err := e.Repository.validate(); err != nil {
		return err
	}
	if e.IssueNumber <= 0 {
		return errors.New("issue number is required")
	}
	return nil
}

// FromBot reports whether the comment was written by a bot account.
func (e IssueCommentEvent) FromBot() bool {
	return strings.EqualFold(e.Comment.AuthorType, "Bot") || strings.HasSuffix(e.Comment.Author, "[bot]")
}

// ParseIssueCommentEvent decodes a GitHub issue_comment event payload.
func ParseIssueCommentEvent(r io.Reader) (IssueCommentEvent, error) {
	var raw github.IssueCommentEvent

	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return IssueCommentEvent{}, fmt.Errorf("decode issue_comment event: %w", err)
	}

	issue := raw.GetIssue()
	if issue == nil {
		return IssueCommentEvent{}, errors.New("issue object is required")
	}
	comment := raw.GetComment()

	return IssueCommentEvent{
		Action:        CommentAction(strings.ToLower(strings.TrimSpace(raw.GetAction()))),
		Repository:    repositoryFrom(raw.GetRepo()),
		IssueNumber:   issue.GetNumber(),
		IsPullRequest: issue.IsPullRequest(),
		Comment: Comment{
			ID:         comment.GetID(),
			Body:       comment.GetBody(),
			Author:     strings.TrimSpace(comment.GetUser().GetLogin()),
			AuthorType: comment.GetUser().GetType(),
		},
	}, nil
}
