package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rancher/cherry-pick-bot/internal/app"
	gh "github.com/rancher/cherry-pick-bot/internal/github"
	"github.com/rancher/cherry-pick-bot/internal/replay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Printf("cherry-pick-bot failed: %v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	loadRunner := func() (*app.Runner, app.Config, error) {
		path := configPath
		if path == "" {
			path = os.Getenv(app.ConfigPathEnv)
		}
		cfg, err := app.LoadConfigFile(path)
		if err != nil {
			return nil, app.Config{}, fmt.Errorf("load config: %w", err)
		}
		runner, err := app.NewRunner(cfg)
		if err != nil {
			return nil, app.Config{}, fmt.Errorf("create runner: %w", err)
		}
		return runner, cfg, nil
	}

	runAction := func(cmd *cobra.Command, _ []string) error {
		runner, _, err := loadRunner()
		if err != nil {
			return err
		}
		return runner.Run(cmd.Context())
	}

	root := &cobra.Command{
		Use:   "cherry-pick-bot",
		Short: "Replay merged pull requests onto release branches",
		Long: `cherry-pick-bot replays the commits of a merged pull request onto other branches
through the GitHub API and opens a pull request for each target.

Targets come from labels (cherry-pick/<branch>), configured target branches, or a
"/cherry-pick <branch>" comment on the pull request.

Without a subcommand it runs as a GitHub Action step.`,
		SilenceUsage: true,
		RunE:         runAction,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults to $"+app.ConfigPathEnv+")")

	root.AddCommand(&cobra.Command{
		Use:   "action",
		Short: "Handle the event that triggered the current GitHub Actions job",
		Args:  cobra.NoArgs,
		RunE:  runAction,
	})

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Receive GitHub webhooks and cherry-pick as events arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, cfg, err := loadRunner()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			return app.NewServer(runner).ListenAndServe(cmd.Context())
		},
	})

	root.AddCommand(newReplayCmd(loadRunner))

	return root
}

func newReplayCmd(loadRunner func() (*app.Runner, app.Config, error)) *cobra.Command {
	var (
		repoRef     string
		target      string
		pullRequest bool
		title       string
	)

	cmd := &cobra.Command{
		Use:   "replay <commit>...",
		Short: "Replay commits onto a branch and print the result as JSON",
		Long: `Replay applies the given commits, in order, onto --branch.

By default the branch itself is advanced. With --pull-request the commits land on a
derived branch and a pull request into --branch is opened instead.`,
		Example: `  cherry-pick-bot replay --repo rancher/rancher --branch release/v2.9 3f2c1ab 9e0d7c4
  cherry-pick-bot replay --repo rancher/rancher --branch release/v2.9 --pull-request 3f2c1ab`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := gh.ParseRepo(repoRef)
			if err != nil {
				return err
			}

			runner, _, err := loadRunner()
			if err != nil {
				return err
			}
			client, err := runner.Client(cmd.Context())
			if err != nil {
				return err
			}
			engine := replay.New(client, client, runner.Logger())

			var out any
			if pullRequest {
				out, err = engine.ReplayAsPullRequest(cmd.Context(), repo, args, target, replay.PullRequestOptions{Title: title})
			} else {
				out, err = engine.Replay(cmd.Context(), repo, args, target)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&repoRef, "repo", "", "repository as owner/name")
	cmd.Flags().StringVar(&target, "branch", "", "branch to replay onto")
	cmd.Flags().BoolVar(&pullRequest, "pull-request", false, "open a pull request instead of advancing the branch")
	cmd.Flags().StringVar(&title, "title", "", "pull request title (with --pull-request)")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("branch")

	return cmd
}
