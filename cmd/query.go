// -- cmd/query.go --
package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/internal/config"
	"github.com/xkilldash9x/specter-cli/internal/observability"
)

// newQueryCmd creates the `query` command: one prompt, one session.
func newQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query \"<prompt>\"",
		Short: "Submits a single prompt and prints the captured response",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Flags override config file and env values through viper.
			bindings := map[string]string{
				"interaction.url":                   "url",
				"browser.headless":                  "headless",
				"proxy.mode":                        "proxy",
				"capture.output_dir":                "output-dir",
				"interaction.navigation_timeout":    "nav-timeout",
				"interaction.nav_retries":           "retries",
				"interaction.poll_interval":         "poll-interval",
				"interaction.required_stable_polls": "stable-polls",
				"interaction.selector_override":     "selector",
				"interaction.model":                 "model",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve so the flag overrides bound in PreRunE apply.
			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("proxy") {
				cfg.Proxy.Enabled = cfg.Proxy.Mode != config.ProxyModeNone
				if err := cfg.Proxy.Validate(); err != nil {
					return fmt.Errorf("%w: %w", config.ErrInvalid, err)
				}
			}

			archive, err := openArchive(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect response archive: %w", err)
			}
			if archive != nil {
				defer archive.Close()
			}

			sessionID := uuid.NewString()
			logger.Info("Query session starting",
				zap.String("session_id", sessionID),
				zap.String("url", cfg.Interaction.URL))

			result, err := runSession(ctx, cfg, args[0], sessionID, archive)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Response.Text)
			logger.Info("Query session finished",
				zap.String("state", string(result.State)),
				zap.String("artifacts", result.ArtifactDir))
			return nil
		},
	}

	flags := queryCmd.Flags()
	flags.String("url", "", "chat front end URL")
	flags.Bool("headless", true, "run the browser headless")
	flags.String("proxy", "", "proxy mode: none, custom, or vendor")
	flags.String("output-dir", "", "artifact output directory")
	flags.Duration("nav-timeout", 0, "navigation timeout")
	flags.Int("retries", 0, "navigation retry budget")
	flags.Duration("poll-interval", 0, "response stability poll interval")
	flags.Int("stable-polls", 0, "consecutive stable polls required")
	flags.String("selector", "", "CSS selector override for the chat input")
	flags.String("model", "", "model label recorded in artifact metadata")

	return queryCmd
}
