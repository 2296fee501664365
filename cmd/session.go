// -- cmd/session.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/internal/artifacts"
	"github.com/xkilldash9x/specter-cli/internal/browser"
	"github.com/xkilldash9x/specter-cli/internal/browser/stealth"
	"github.com/xkilldash9x/specter-cli/internal/config"
	"github.com/xkilldash9x/specter-cli/internal/humanoid"
	"github.com/xkilldash9x/specter-cli/internal/interact"
	"github.com/xkilldash9x/specter-cli/internal/observability"
	"github.com/xkilldash9x/specter-cli/internal/quiesce"
	"github.com/xkilldash9x/specter-cli/internal/store"
)

// runSession executes one complete interaction in a fresh browser. Every
// session gets its own browser process, persona state, and artifact
// directory; nothing is shared between sessions.
func runSession(ctx context.Context, cfg *config.Config, prompt, sessionID string, archive *store.Store) (*interact.Result, error) {
	logger := observability.GetLogger().With(zap.String("session_id", sessionID))

	writer, err := artifacts.NewWriter(cfg.Capture, sessionID, logger)
	if err != nil {
		return nil, fmt.Errorf("prepare artifact dir: %w", err)
	}

	driver, err := browser.NewChrome(ctx, cfg.Browser, cfg.Proxy, stealth.DefaultPersona, logger)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	human := humanoid.New(cfg.Humanoid, logger, nil)
	orch := interact.New(cfg.Interaction, driver, human, quiesce.New(logger), writer, sessionID, logger)

	result, err := orch.Run(ctx, prompt)
	if err != nil {
		return result, err
	}

	if archive != nil && result.Response != nil {
		rec := store.Record{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Query:     prompt,
			Content:   result.Response.Text,
			Model:     cfg.Interaction.Model,
			TimedOut:  result.Response.TimedOut,
			CreatedAt: result.Response.Timestamp,
		}
		// The archive is an add-on; a database hiccup must not fail the session.
		if err := archive.SaveResponse(ctx, rec); err != nil {
			logger.Warn("Failed to archive response", zap.Error(err))
		}
	}

	return result, nil
}

// openArchive connects the optional response archive when configured.
func openArchive(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg.Database.URL == "" {
		return nil, nil
	}
	return store.Connect(ctx, cfg.Database.URL, observability.GetLogger())
}
