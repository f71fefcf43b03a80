package orchestrator

// Conflict strategies.
const (
	ConflictStrategyFail          = "fail"
	ConflictStrategyPlaceholderPR = "placeholder-pr"
)

// Config captures the runtime controls the orchestrator needs.
type Config struct {
	LabelPrefix      string
	ConflictStrategy string
	DryRun           bool
	TargetBranches   []string
	// RequiredPermission is the minimum repository permission a /cherry-pick author needs.
	RequiredPermission string
}

func (c Config) doneLabel(branch string) string {
	return c.LabelPrefix + "done/" + branch
}
