package gh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	github "github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
)

const defaultUserAgent = "rancher-cherry-pick-bot"

// NewRESTFactory returns a GitHub client factory backed by the go-github REST client. When
// base and upload URLs are provided, the factory targets a GitHub Enterprise instance.
func NewRESTFactory(baseURL, uploadURL string) Factory {
	return &restFactory{
		userAgent: defaultUserAgent,
		baseURL:   strings.TrimSpace(baseURL),
		uploadURL: strings.TrimSpace(uploadURL),
	}
}

type restFactory struct {
	userAgent string
	baseURL   string
	uploadURL string
}

type restClient struct {
	client *github.Client
}

func (f *restFactory) New(ctx context.Context, token string) (Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	if f.baseURL == "" && f.uploadURL != "" {
		return nil, fmt.Errorf("github upload url cannot be set without base url")
	}

	var ghClient *github.Client
	if f.baseURL != "" {
		baseURLNormalized, err := normalizeGitHubURL(f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}

		if f.uploadURL == "" {
			return nil, fmt.Errorf("github upload url must be provided when base url is set")
		}

		uploadURLNormalized, err := normalizeGitHubURL(f.uploadURL)
		if err != nil {
			return nil, fmt.Errorf("parse github upload url: %w", err)
		}

		ghClient, err = github.NewClient(tc).WithEnterpriseURLs(baseURLNormalized, uploadURLNormalized)
		if err != nil {
			return nil, fmt.Errorf("construct enterprise github client: %w", err)
		}
	} else {
		ghClient = github.NewClient(tc)
	}

	if f.userAgent != "" {
		ghClient.UserAgent = f.userAgent
	}

	return &restClient{client: ghClient}, nil
}

func normalizeGitHubURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		return "", fmt.Errorf("url must include scheme (e.g. https://)")
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("url must include host")
	}

	if parsed.Path == "" {
		parsed.Path = "/"
	} else if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	return parsed.String(), nil
}

func headsRef(branch string) string {
	return "heads/" + strings.TrimPrefix(strings.TrimPrefix(branch, "refs/"), "heads/")
}

func (c *restClient) GetBranchHead(ctx context.Context, repo Repo, branch string) (string, error) {
	ref, resp, err := c.client.Git.GetRef(ctx, repo.Owner, repo.Name, headsRef(branch))
	if err != nil {
		if isNotFound(resp, err) {
			return "", fmt.Errorf("get ref %s: %w", branch, ErrBranchNotFound)
		}
		return "", fmt.Errorf("get ref %s: %w", branch, classifyGitHubError(err))
	}

	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("get ref %s: response did not include an object sha", branch)
	}
	return sha, nil
}

func (c *restClient) GetCommit(ctx context.Context, repo Repo, sha string) (Commit, error) {
	commit, resp, err := c.client.Git.GetCommit(ctx, repo.Owner, repo.Name, sha)
	if err != nil {
		if isNotFound(resp, err) || statusCode(resp, err) == http.StatusUnprocessableEntity {
			return Commit{}, fmt.Errorf("get commit %s: %w", sha, ErrNotFound)
		}
		return Commit{}, fmt.Errorf("get commit %s: %w", sha, classifyGitHubError(err))
	}
	return commitFromGitHub(commit), nil
}

func (c *restClient) CreateCommit(ctx context.Context, repo Repo, input NewCommit) (Commit, error) {
	req := &github.Commit{
		Message:   github.String(input.Message),
		Tree:      &github.Tree{SHA: github.String(input.TreeSHA)},
		Author:    identityToGitHub(input.Author),
		Committer: identityToGitHub(input.Committer),
	}
	for _, parent := range input.Parents {
		req.Parents = append(req.Parents, &github.Commit{SHA: github.String(parent)})
	}

	commit, _, err := c.client.Git.CreateCommit(ctx, repo.Owner, repo.Name, req)
	if err != nil {
		return Commit{}, fmt.Errorf("create commit: %w", classifyGitHubError(err))
	}
	return commitFromGitHub(commit), nil
}

func (c *restClient) CreateRef(ctx context.Context, repo Repo, branch, sha string) error {
	ref := &github.Reference{
		Ref:    github.String("refs/" + headsRef(branch)),
		Object: &github.GitObject{SHA: github.String(sha)},
	}

	if _, resp, err := c.client.Git.CreateRef(ctx, repo.Owner, repo.Name, ref); err != nil {
		if statusCode(resp, err) == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(errorMessage(err)), "already exists") {
			return fmt.Errorf("create ref %s: %w", branch, ErrRefExists)
		}
		return fmt.Errorf("create ref %s: %w", branch, classifyGitHubError(err))
	}
	return nil
}

func (c *restClient) UpdateRef(ctx context.Context, repo Repo, branch, sha string, force bool) error {
	ref := &github.Reference{
		Ref:    github.String("refs/" + headsRef(branch)),
		Object: &github.GitObject{SHA: github.String(sha)},
	}

	if _, resp, err := c.client.Git.UpdateRef(ctx, repo.Owner, repo.Name, ref, force); err != nil {
		if isNotFound(resp, err) {
			return fmt.Errorf("update ref %s: %w", branch, ErrBranchNotFound)
		}
		return fmt.Errorf("update ref %s: %w", branch, classifyGitHubError(err))
	}
	return nil
}

func (c *restClient) DeleteRef(ctx context.Context, repo Repo, branch string) error {
	resp, err := c.client.Git.DeleteRef(ctx, repo.Owner, repo.Name, headsRef(branch))
	if err != nil {
		// GitHub answers 422 "Reference does not exist" for missing refs.
		if isNotFound(resp, err) || statusCode(resp, err) == http.StatusUnprocessableEntity {
			return fmt.Errorf("delete ref %s: %w", branch, ErrNotFound)
		}
		return fmt.Errorf("delete ref %s: %w", branch, classifyGitHubError(err))
	}
	return nil
}

func (c *restClient) Merge(ctx context.Context, repo Repo, base, head, message string) (MergeResult, error) {
	req := &github.RepositoryMergeRequest{
		Base: github.String(base),
		Head: github.String(head),
	}
	if message != "" {
		req.CommitMessage = github.String(message)
	}

	commit, resp, err := c.client.Repositories.Merge(ctx, repo.Owner, repo.Name, req)
	if err != nil {
		switch {
		case statusCode(resp, err) == http.StatusConflict:
			return MergeResult{}, fmt.Errorf("merge %s into %s: %w", head, base, ErrMergeConflict)
		case isNotFound(resp, err):
			return MergeResult{}, fmt.Errorf("merge %s into %s: %w", head, base, ErrNotFound)
		}
		return MergeResult{}, fmt.Errorf("merge %s into %s: %w", head, base, classifyGitHubError(err))
	}

	if resp != nil && resp.StatusCode == http.StatusNoContent {
		return MergeResult{}, fmt.Errorf("merge %s into %s: %w", head, base, ErrNothingToMerge)
	}

	result := MergeResult{
		SHA:     commit.GetSHA(),
		TreeSHA: commit.GetCommit().GetTree().GetSHA(),
	}
	if result.TreeSHA == "" {
		return MergeResult{}, fmt.Errorf("merge %s into %s: response did not include a tree sha", head, base)
	}
	return result, nil
}

func (c *restClient) GetPullRequest(ctx context.Context, repo Repo, number int) (PRMetadata, error) {
	pr, resp, err := c.client.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		if isNotFound(resp, err) {
			return PRMetadata{}, fmt.Errorf("get pull request #%d: %w", number, ErrNotFound)
		}
		return PRMetadata{}, fmt.Errorf("get pull request: %w", classifyGitHubError(err))
	}

	labels := make([]string, 0, len(pr.Labels))
	for _, label := range pr.Labels {
		if label == nil {
			continue
		}
		if name := label.GetName(); name != "" {
			labels = append(labels, name)
		}
	}

	assignees := make([]string, 0, len(pr.Assignees))
	for _, user := range pr.Assignees {
		if user == nil {
			continue
		}
		if login := user.GetLogin(); login != "" {
			assignees = append(assignees, login)
		}
	}

	metadata := PRMetadata{
		Owner:     repo.Owner,
		Repo:      repo.Name,
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		MergeSHA:  pr.GetMergeCommitSHA(),
		BaseRef:   pr.GetBase().GetRef(),
		Labels:    labels,
		Assignees: assignees,
		IsMerged:  pr.GetMerged(),
	}

	if head := pr.GetHead(); head != nil {
		metadata.HeadSHA = head.GetSHA()
		metadata.HeadRef = head.GetRef()
		if headRepo := head.GetRepo(); headRepo != nil {
			metadata.HeadRepo = headRepo.GetName()
			if owner := headRepo.GetOwner(); owner != nil {
				metadata.HeadOwner = owner.GetLogin()
			}
		}
	}

	if metadata.HeadOwner != "" && !strings.EqualFold(metadata.HeadOwner, repo.Owner) {
		metadata.IsFromFork = true
	}

	if metadata.HeadRepo != "" && !strings.EqualFold(metadata.HeadRepo, repo.Name) {
		metadata.IsFromFork = true
	}

	return metadata, nil
}

func (c *restClient) ListPullRequestCommits(ctx context.Context, repo Repo, number int) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}

	var shas []string
	for {
		commits, resp, err := c.client.PullRequests.ListCommits(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull request commits: %w", classifyGitHubError(err))
		}

		for _, commit := range commits {
			if sha := commit.GetSHA(); sha != "" {
				shas = append(shas, sha)
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return shas, nil
}

func (c *restClient) ListCherryPickPRs(ctx context.Context, repo Repo, head, base string) ([]CherryPickPR, error) {
	opts := &github.PullRequestListOptions{
		State: "open",
		Head:  fmt.Sprintf("%s:%s", repo.Owner, head),
		Base:  base,
		ListOptions: github.ListOptions{
			PerPage: 50,
		},
	}

	var results []CherryPickPR
	for {
		prs, resp, err := c.client.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull requests: %w", classifyGitHubError(err))
		}

		for _, pr := range prs {
			if pr == nil {
				continue
			}
			results = append(results, pullRequestFromGitHub(pr))
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return results, nil
}

func (c *restClient) EnsureBranchExists(ctx context.Context, repo Repo, branch string) error {
	_, resp, err := c.client.Repositories.GetBranch(ctx, repo.Owner, repo.Name, branch, false)
	if err != nil {
		if isNotFound(resp, err) {
			return ErrBranchNotFound
		}
		return fmt.Errorf("get branch %s: %w", branch, classifyGitHubError(err))
	}
	return nil
}

func (c *restClient) CreatePullRequest(ctx context.Context, repo Repo, input CreatePROptions) (CherryPickPR, error) {
	pr, _, err := c.client.PullRequests.Create(ctx, repo.Owner, repo.Name, &github.NewPullRequest{
		Title:               github.String(input.Title),
		Head:                github.String(input.Head),
		Base:                github.String(input.Base),
		Body:                github.String(input.Body),
		Draft:               github.Bool(input.Draft),
		MaintainerCanModify: github.Bool(input.MaintainerCanModify),
	})
	if err != nil {
		return CherryPickPR{}, fmt.Errorf("create pull request: %w", classifyGitHubError(err))
	}

	result := pullRequestFromGitHub(pr)

	if len(input.Labels) > 0 {
		_, _, err = c.client.Issues.AddLabelsToIssue(ctx, repo.Owner, repo.Name, pr.GetNumber(), input.Labels)
		if err != nil {
			return result, fmt.Errorf("add labels to pull request: %w", classifyGitHubError(err))
		}
	}

	if len(input.Assignees) > 0 {
		_, _, err = c.client.Issues.AddAssignees(ctx, repo.Owner, repo.Name, pr.GetNumber(), input.Assignees)
		if err != nil {
			return result, fmt.Errorf("add assignees to pull request: %w", classifyGitHubError(err))
		}
	}

	return result, nil
}

func (c *restClient) CommentOnPullRequest(ctx context.Context, repo Repo, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := c.client.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, comment); err != nil {
		return fmt.Errorf("create comment: %w", classifyGitHubError(err))
	}
	return nil
}

func (c *restClient) CommitExistsOnBranch(ctx context.Context, repo Repo, commitSHA, branch string) (bool, error) {
	comp, resp, err := c.client.Repositories.CompareCommits(ctx, repo.Owner, repo.Name, branch, commitSHA, nil)
	if err != nil {
		if isNotFound(resp, err) {
			return false, nil
		}
		return false, fmt.Errorf("compare commits %s..%s: %w", branch, commitSHA, classifyGitHubError(err))
	}

	switch comp.GetStatus() {
	case "behind", "identical":
		return true, nil
	default:
		return false, nil
	}
}

func (c *restClient) ListPullRequestComments(ctx context.Context, repo Repo, number int) ([]IssueComment, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var results []IssueComment

	for {
		comments, resp, err := c.client.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", classifyGitHubError(err))
		}

		for _, comment := range comments {
			if comment == nil {
				continue
			}
			results = append(results, IssueComment{ID: comment.GetID(), Body: comment.GetBody()})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return results, nil
}

func (c *restClient) UpdateComment(ctx context.Context, repo Repo, commentID int64, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := c.client.Issues.EditComment(ctx, repo.Owner, repo.Name, commentID, comment); err != nil {
		return fmt.Errorf("edit comment: %w", classifyGitHubError(err))
	}
	return nil
}

func (c *restClient) HasLabel(ctx context.Context, repo Repo, number int, label string) (bool, error) {
	labels, _, err := c.client.Issues.ListLabelsByIssue(ctx, repo.Owner, repo.Name, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return false, classifyGitHubError(err)
	}

	for _, l := range labels {
		if l.GetName() == label {
			return true, nil
		}
	}

	return false, nil
}

func (c *restClient) AddLabel(ctx context.Context, repo Repo, number int, label string) error {
	_, _, err := c.client.Issues.AddLabelsToIssue(ctx, repo.Owner, repo.Name, number, []string{label})
	return classifyGitHubError(err)
}

func (c *restClient) GetPermissionLevel(ctx context.Context, repo Repo, username string) (string, error) {
	level, resp, err := c.client.Repositories.GetPermissionLevel(ctx, repo.Owner, repo.Name, username)
	if err != nil {
		if isNotFound(resp, err) {
			return PermissionNone, nil
		}
		return "", fmt.Errorf("get permission level for %s: %w", username, classifyGitHubError(err))
	}

	if level.GetPermission() == "" {
		return PermissionNone, nil
	}
	return level.GetPermission(), nil
}

func commitFromGitHub(commit *github.Commit) Commit {
	result := Commit{
		SHA:     commit.GetSHA(),
		Message: commit.GetMessage(),
		TreeSHA: commit.GetTree().GetSHA(),
	}
	for _, parent := range commit.Parents {
		if sha := parent.GetSHA(); sha != "" {
			result.Parents = append(result.Parents, sha)
		}
	}
	if author := commit.GetAuthor(); author != nil {
		result.Author = &Identity{Name: author.GetName(), Email: author.GetEmail()}
	}
	if committer := commit.GetCommitter(); committer != nil {
		result.Committer = &Identity{Name: committer.GetName(), Email: committer.GetEmail()}
	}
	return result
}

func identityToGitHub(id *Identity) *github.CommitAuthor {
	if id == nil || (id.Name == "" && id.Email == "") {
		return nil
	}
	return &github.CommitAuthor{Name: github.String(id.Name), Email: github.String(id.Email)}
}

func pullRequestFromGitHub(pr *github.PullRequest) CherryPickPR {
	result := CherryPickPR{
		URL:    pr.GetHTMLURL(),
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		Body:   pr.GetBody(),
	}
	if head := pr.GetHead(); head != nil {
		result.Head = head.GetRef()
	}
	if base := pr.GetBase(); base != nil {
		result.Base = base.GetRef()
	}
	return result
}

func isNotFound(resp *github.Response, err error) bool {
	return statusCode(resp, err) == http.StatusNotFound
}

func statusCode(resp *github.Response, err error) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	var githubErr *github.ErrorResponse
	if errors.As(err, &githubErr) && githubErr.Response != nil {
		return githubErr.Response.StatusCode
	}
	return 0
}

func errorMessage(err error) string {
	var githubErr *github.ErrorResponse
	if errors.As(err, &githubErr) {
		return githubErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func classifyGitHubError(err error) error {
	if err == nil {
		return nil
	}
	if isRetryableGitHubError(err) {
		return Retryable(err)
	}
	return err
}

func isRetryableGitHubError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var acceptedErr *github.AcceptedError
	if errors.As(err, &acceptedErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response != nil {
			code := respErr.Response.StatusCode
			if code == http.StatusTooManyRequests || (code >= 500 && code <= 599) {
				return true
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	return false
}
