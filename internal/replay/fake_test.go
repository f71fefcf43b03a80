package replay_test

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/rancher/cherry-pick-bot/internal/github"
)

// fakeRemote is an in-memory stand-in for the Git data and pull request APIs.
type fakeRemote struct {
	refs    map[string]string
	commits map[string]gh.Commit

	conflicts      map[string]bool
	nothingToMerge map[string]bool
	failCreate     map[string]error
	failUpdate     map[string]error
	failDelete     error
	nextCommit     int
	nextMerge      int
	calls          []string
	created        []gh.NewCommit
	merges         []string
	openPRs        []gh.CherryPickPR
	createdPRs     []gh.CreatePROptions
	createPRErr    error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		refs:           map[string]string{},
		commits:        map[string]gh.Commit{},
		conflicts:      map[string]bool{},
		nothingToMerge: map[string]bool{},
	}
}

func (f *fakeRemote) addCommit(c gh.Commit) {
	f.commits[c.SHA] = c
}

func (f *fakeRemote) GetBranchHead(_ context.Context, _ gh.Repo, branch string) (string, error) {
	f.calls = append(f.calls, "get-ref "+branch)
	sha, ok := f.refs[branch]
	if !ok {
		return "", fmt.Errorf("get ref %s: %w", branch, gh.ErrBranchNotFound)
	}
	return sha, nil
}

func (f *fakeRemote) GetCommit(_ context.Context, _ gh.Repo, sha string) (gh.Commit, error) {
	f.calls = append(f.calls, "get-commit "+sha)
	c, ok := f.commits[sha]
	if !ok {
		return gh.Commit{}, fmt.Errorf("get commit %s: %w", sha, gh.ErrNotFound)
	}
	return c, nil
}

func (f *fakeRemote) CreateCommit(_ context.Context, _ gh.Repo, input gh.NewCommit) (gh.Commit, error) {
	f.calls = append(f.calls, "create-commit "+input.Message)
	if err := f.failCreate[input.Message]; err != nil {
		return gh.Commit{}, err
	}
	f.nextCommit++
	c := gh.Commit{
		SHA:       fmt.Sprintf("newcommitsha%d", f.nextCommit),
		Message:   input.Message,
		TreeSHA:   input.TreeSHA,
		Parents:   input.Parents,
		Author:    input.Author,
		Committer: input.Committer,
	}
	f.commits[c.SHA] = c
	f.created = append(f.created, input)
	return c, nil
}

func (f *fakeRemote) CreateRef(_ context.Context, _ gh.Repo, branch, sha string) error {
	f.calls = append(f.calls, "create-ref "+branch)
	if _, ok := f.refs[branch]; ok {
		return fmt.Errorf("create ref %s: %w", branch, gh.ErrRefExists)
	}
	f.refs[branch] = sha
	return nil
}

func (f *fakeRemote) UpdateRef(_ context.Context, _ gh.Repo, branch, sha string, _ bool) error {
	f.calls = append(f.calls, "update-ref "+branch+" "+sha)
	if err := f.failUpdate[branch]; err != nil {
		return err
	}
	if _, ok := f.refs[branch]; !ok {
		return fmt.Errorf("update ref %s: %w", branch, gh.ErrBranchNotFound)
	}
	f.refs[branch] = sha
	return nil
}

func (f *fakeRemote) DeleteRef(_ context.Context, _ gh.Repo, branch string) error {
	f.calls = append(f.calls, "delete-ref "+branch)
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, ok := f.refs[branch]; !ok {
		return fmt.Errorf("delete ref %s: %w", branch, gh.ErrNotFound)
	}
	delete(f.refs, branch)
	return nil
}

func (f *fakeRemote) Merge(_ context.Context, _ gh.Repo, base, head, _ string) (gh.MergeResult, error) {
	f.calls = append(f.calls, "merge "+head+" into "+base)
	f.merges = append(f.merges, head)
	if f.conflicts[head] {
		return gh.MergeResult{}, fmt.Errorf("merge %s into %s: %w", head, base, gh.ErrMergeConflict)
	}
	if f.nothingToMerge[head] {
		return gh.MergeResult{}, fmt.Errorf("merge %s into %s: %w", head, base, gh.ErrNothingToMerge)
	}
	baseTip, ok := f.refs[base]
	if !ok {
		return gh.MergeResult{}, fmt.Errorf("merge %s into %s: %w", head, base, gh.ErrNotFound)
	}
	f.nextMerge++
	result := gh.MergeResult{
		SHA:     fmt.Sprintf("mergecommitsha%d", f.nextMerge),
		TreeSHA: "mergedtree-" + head,
	}
	f.commits[result.SHA] = gh.Commit{SHA: result.SHA, TreeSHA: result.TreeSHA, Parents: []string{baseTip, head}}
	f.refs[base] = result.SHA
	return result, nil
}

func (f *fakeRemote) ListCherryPickPRs(_ context.Context, _ gh.Repo, head, base string) ([]gh.CherryPickPR, error) {
	var out []gh.CherryPickPR
	for _, pr := range f.openPRs {
		if pr.Head == head && pr.Base == base {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (f *fakeRemote) CreatePullRequest(_ context.Context, _ gh.Repo, input gh.CreatePROptions) (gh.CherryPickPR, error) {
	f.createdPRs = append(f.createdPRs, input)
	if f.createPRErr != nil {
		return gh.CherryPickPR{}, f.createPRErr
	}
	pr := gh.CherryPickPR{
		Number: 100 + len(f.createdPRs),
		URL:    fmt.Sprintf("https://github.com/rancher/repo/pull/%d", 100+len(f.createdPRs)),
		Title:  input.Title,
		Body:   input.Body,
		Head:   input.Head,
		Base:   input.Base,
	}
	f.openPRs = append(f.openPRs, pr)
	return pr, nil
}

func (f *fakeRemote) called(prefix string) []string {
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
