package gh

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Repo identifies a repository by owner and name.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepo parses an "owner/name" reference.
func ParseRepo(s string) (Repo, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, fmt.Errorf("invalid repository %q: expected owner/name", s)
	}
	return Repo{Owner: owner, Name: name}, nil
}

// PRMetadata contains source pull request details needed for cherry-pick operations.
type PRMetadata struct {
	Owner      string
	Repo       string
	Number     int
	Title      string
	Body       string
	MergeSHA   string
	HeadSHA    string
	HeadRef    string
	HeadRepo   string
	HeadOwner  string
	BaseRef    string
	Labels     []string
	Assignees  []string
	IsMerged   bool
	IsFromFork bool
}

// CherryPickPR represents a cherry-pick pull request.
type CherryPickPR struct {
	URL    string
	Number int
	Title  string
	Body   string
	Head   string
	Base   string
}

// IssueComment represents a GitHub issue or pull request comment.
type IssueComment struct {
	ID   int64
	Body string
}

// Identity is the name/email pair recorded as a commit author or committer.
type Identity struct {
	Name  string
	Email string
}

// Commit is a git commit object as returned by the Git data API.
type Commit struct {
	SHA       string
	Message   string
	TreeSHA   string
	Parents   []string
	Author    *Identity
	Committer *Identity
}

// Parent returns the first parent SHA, or "" for a root commit.
func (c Commit) Parent() string {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0]
}

// NewCommit describes a commit object to create.
type NewCommit struct {
	Message   string
	TreeSHA   string
	Parents   []string
	Author    *Identity
	Committer *Identity
}

// MergeResult is the merge commit produced by a server-side merge.
type MergeResult struct {
	SHA     string
	TreeSHA string
}

// Permission levels reported by the collaborators API.
const (
	PermissionAdmin    = "admin"
	PermissionMaintain = "maintain"
	PermissionWrite    = "write"
	PermissionTriage   = "triage"
	PermissionRead     = "read"
	PermissionNone     = "none"
)

// GitData is the subset of the Git data API used to replay commits.
type GitData interface {
	GetBranchHead(ctx context.Context, repo Repo, branch string) (string, error)
	GetCommit(ctx context.Context, repo Repo, sha string) (Commit, error)
	CreateCommit(ctx context.Context, repo Repo, input NewCommit) (Commit, error)
	CreateRef(ctx context.Context, repo Repo, branch, sha string) error
	UpdateRef(ctx context.Context, repo Repo, branch, sha string, force bool) error
	DeleteRef(ctx context.Context, repo Repo, branch string) error
	Merge(ctx context.Context, repo Repo, base, head, message string) (MergeResult, error)
}

// PullRequests exposes the pull request operations used when publishing a replay.
type PullRequests interface {
	ListCherryPickPRs(ctx context.Context, repo Repo, head, base string) ([]CherryPickPR, error)
	CreatePullRequest(ctx context.Context, repo Repo, input CreatePROptions) (CherryPickPR, error)
}

// Client exposes the GitHub operations required by the cherry-pick bot.
type Client interface {
	GitData
	PullRequests

	GetPullRequest(ctx context.Context, repo Repo, number int) (PRMetadata, error)
	ListPullRequestCommits(ctx context.Context, repo Repo, number int) ([]string, error)
	EnsureBranchExists(ctx context.Context, repo Repo, branch string) error
	CommentOnPullRequest(ctx context.Context, repo Repo, number int, body string) error
	ListPullRequestComments(ctx context.Context, repo Repo, number int) ([]IssueComment, error)
	UpdateComment(ctx context.Context, repo Repo, commentID int64, body string) error
	CommitExistsOnBranch(ctx context.Context, repo Repo, commitSHA, branch string) (bool, error)
	HasLabel(ctx context.Context, repo Repo, number int, label string) (bool, error)
	AddLabel(ctx context.Context, repo Repo, number int, label string) error
	GetPermissionLevel(ctx context.Context, repo Repo, username string) (string, error)
}

// CreatePROptions defines the metadata required to open a cherry-pick PR.
type CreatePROptions struct {
	Title               string
	Body                string
	Head                string
	Base                string
	Draft               bool
	Labels              []string
	Assignees           []string
	MaintainerCanModify bool
}

// Factory builds concrete GitHub clients (e.g., REST-backed).
type Factory interface {
	New(ctx context.Context, token string) (Client, error)
}

var (
	// ErrNotFound indicates a commit, ref or other object does not exist upstream.
	ErrNotFound = errors.New("github: not found")

	// ErrBranchNotFound indicates the requested branch does not exist.
	ErrBranchNotFound = errors.New("github: branch not found")

	// ErrRefExists is returned when creating a reference whose name is taken.
	ErrRefExists = errors.New("github: reference already exists")

	// ErrMergeConflict is returned when a server-side merge cannot be completed automatically.
	ErrMergeConflict = errors.New("github: merge conflict")

	// ErrNothingToMerge is returned when the base already contains the head.
	ErrNothingToMerge = errors.New("github: nothing to merge")
)

// retryableError marks an error that may succeed if the operation is retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Retryable marks err as retryable. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether the supplied error resulted from a retryable GitHub
// API failure (for example, a transient network problem or rate-limited request).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var target *retryableError
	return errors.As(err, &target)
}

var permissionRank = map[string]int{
	PermissionNone:     0,
	PermissionRead:     1,
	PermissionTriage:   2,
	PermissionWrite:    3,
	PermissionMaintain: 4,
	PermissionAdmin:    5,
}

// ValidPermission reports whether level is one of the known permission levels.
func ValidPermission(level string) bool {
	_, ok := permissionRank[level]
	return ok
}

// PermissionAtLeast reports whether have grants at least the access of want.
// Unknown levels never satisfy a requirement.
func PermissionAtLeast(have, want string) bool {
	h, ok := permissionRank[have]
	if !ok {
		return false
	}
	w, ok := permissionRank[want]
	if !ok {
		return false
	}
	return h >= w
}
