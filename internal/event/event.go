// Package event decodes the GitHub webhook payloads the bot reacts to into explicit,
// validated variants.
package event

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Names of the webhook events the bot understands.
const (
	NamePullRequest  = "pull_request"
	NameIssueComment = "issue_comment"
)

// ErrUnsupportedEvent is returned for event types the bot does not handle.
var ErrUnsupportedEvent = errors.New("unsupported event")

// Event is one of PullRequestEvent or IssueCommentEvent.
type Event interface {
	// Name is the webhook event name, e.g. "pull_request".
	Name() string
	Repo() Repository
	validate() error
}

// Repository identifies the owner/name of the repository where the event originated.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) validate() error {
	if r.Owner == "" || r.Name == "" {
		return errors.New("repository owner and name are required")
	}
	return nil
}

// Parse decodes payload according to the webhook event name.
func Parse(name string, payload []byte) (Event, error) {
	var (
		ev  Event
		err error
	)

	switch strings.TrimSpace(name) {
	case NamePullRequest:
		ev, err = ParsePullRequestEvent(bytes.NewReader(payload))
	case NameIssueComment:
		ev, err = ParseIssueCommentEvent(bytes.NewReader(payload))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, name)
	}
	if err != nil {
		return nil, err
	}

	if err := ev.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s event: %w", name, err)
	}
	return ev, nil
}

// ParseFile reads the event JSON from disk, as provided to GitHub Actions through
// GITHUB_EVENT_PATH.
func ParseFile(name, path string) (Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event file: %w", err)
	}
	return Parse(name, data)
}
