// File: cmd/recent.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/specter-cli/internal/config"
	"github.com/xkilldash9x/specter-cli/internal/store"
)

// recentLister is the slice of the archive the recent command needs.
type recentLister interface {
	Recent(ctx context.Context, limit int) ([]store.Record, error)
}

// newRecentCmd creates the `recent` command: lists the newest archived
// responses. Requires the Postgres archive to be configured.
func newRecentCmd() *cobra.Command {
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Lists the newest archived responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}

			archive, err := openArchive(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect response archive: %w", err)
			}
			if archive == nil {
				return fmt.Errorf("%w: recent requires database.url to be set", config.ErrInvalid)
			}
			defer archive.Close()

			return listRecent(ctx, archive, limit, cmd.OutOrStdout())
		},
	}

	recentCmd.Flags().Int("limit", 10, "number of responses to list")
	return recentCmd
}

// listRecent fetches and prints the newest records, one per line.
func listRecent(ctx context.Context, archive recentLister, limit int, out io.Writer) error {
	records, err := archive.Recent(ctx, limit)
	if err != nil {
		return err
	}

	for _, rec := range records {
		marker := ""
		if rec.TimedOut {
			marker = "  [timed out]"
		}
		fmt.Fprintf(out, "%s  %s  %q%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339), rec.SessionID, rec.Query, marker)
	}
	return nil
}
