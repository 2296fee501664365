// -- cmd/tasks.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/internal/config"
	"github.com/xkilldash9x/specter-cli/internal/interact"
	"github.com/xkilldash9x/specter-cli/internal/observability"
	"github.com/xkilldash9x/specter-cli/internal/runner"
)

// newTasksCmd creates the `tasks` command: a JSON batch of prompts executed
// as bounded concurrent sessions.
func newTasksCmd() *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks <file.json>",
		Short: "Runs a task-list batch, one browser session per task",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("runner.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			return viper.BindPFlag("runner.rate_per_minute", cmd.Flags().Lookup("rate"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			list, err := runner.LoadTaskList(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", config.ErrInvalid, err)
			}

			archive, err := openArchive(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect response archive: %w", err)
			}
			if archive != nil {
				defer archive.Close()
			}

			session := func(ctx context.Context, task runner.Task, sessionID string) (*interact.Result, error) {
				return runSession(ctx, cfg, task.Prompt, sessionID, archive)
			}

			results, err := runner.New(cfg.Runner, session, logger).Run(ctx, list)
			if err != nil {
				return err
			}

			failed := 0
			for _, res := range results {
				if res.SessionID == "" || res.Err != nil {
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Task.Title, res.Result.ArtifactDir)
			}
			if failed > 0 {
				logger.Warn("Batch completed with failures", zap.Int("failed", failed))
				return fmt.Errorf("%d of %d tasks failed", failed, len(results))
			}
			return nil
		},
	}

	flags := tasksCmd.Flags()
	flags.Int("concurrency", 0, "maximum concurrent sessions")
	flags.Float64("rate", 0, "session starts per minute")

	return tasksCmd
}
