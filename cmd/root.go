// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/internal/config"
	"github.com/xkilldash9x/specter-cli/internal/interact"
	"github.com/xkilldash9x/specter-cli/internal/observability"
	"github.com/xkilldash9x/specter-cli/internal/retry"
)

// Exit codes, stable for scripting around the CLI.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitInvalidConfig    = 2
	ExitBlocked          = 3
	ExitRetriesExhausted = 4
)

var (
	cfgFile string
	appCfg  *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "specter",
	Short:   "Specter drives chat front ends through a real browser, politely pretending to be human.",
	Version: Version,
	// Configuration and logging are ready before any subcommand runs.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env file supplies proxy and database credentials in development.
		_ = godotenv.Load()

		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.NewFromViper(viper.GetViper())
		if err != nil {
			// Fall back so the failure itself is still logged somewhere.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "specter"})
			return err
		}
		appCfg = cfg

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting specter", zap.String("version", Version))
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI with a signal-aware context and maps the resulting
// error onto the documented exit codes.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode classifies an execution error.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrInvalid):
		return ExitInvalidConfig
	case errors.Is(err, interact.ErrBlocked):
		return ExitBlocked
	case errors.Is(err, retry.ErrExhausted):
		return ExitRetriesExhausted
	default:
		return ExitFailure
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newTasksCmd())
	rootCmd.AddCommand(newRecentCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initializeConfig layers defaults, the config file, and SPECTER_* env vars.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SPECTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("%w: error reading config file: %w", config.ErrInvalid, err)
		}
		// No config file; defaults and env vars carry the day.
	}
	return nil
}
