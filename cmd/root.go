// Package cmd defines and implements the CLI commands for the briefd executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/config"
	"github.com/JakeFAU/seo-brief-automator/internal/pipeline"
	"github.com/JakeFAU/seo-brief-automator/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the application surface the commands use.
type App interface {
	Run(ctx context.Context) error
	Start(ctx context.Context)
	Generate(ctx context.Context, req pipeline.StartRequest, poll time.Duration) (brief.JobState, error)
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "briefd",
		Short:         "Generates SEO content briefs from search results and community research.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `briefd runs the four-stage content brief pipeline: it collects the top search
results for a keyword, researches community discussion around it, analyzes the
competing articles, and combines everything into a final brief.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML, or JSON)")
	cmd.AddCommand(newServeCmd(), newGenerateCmd())
	return cmd
}

// withApp runs fn with the application built by the root command and closes
// the application afterwards, whether fn succeeds or not.
func withApp(fn func(cmd *cobra.Command, app App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if cerr := appInstance.Close(ctx); cerr != nil {
				appInstance.Logger().Warn("close failed", zap.Error(cerr))
			}
		}()
		return fn(cmd, appInstance)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "briefd:", err)
		os.Exit(1)
	}
}
