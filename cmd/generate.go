package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/pipeline"
)

type generateOptions struct {
	req     pipeline.StartRequest
	poll    time.Duration
	timeout time.Duration
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Runs all four stages for one keyword",
		Long: `Drives the pipeline from SERP collection to the final brief without the HTTP
server and prints the saved brief filename.`,
		RunE: withApp(func(cmd *cobra.Command, app App) error {
			return runGenerate(cmd, app, opts)
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.req.FocusKeyword, "keyword", "", "focus keyword (required)")
	flags.StringVar(&opts.req.TopicTheme, "theme", "", "topic theme (required)")
	flags.StringVar(&opts.req.BuyerPersona, "persona", "", "buyer persona (required)")
	flags.StringVar(&opts.req.ContentID, "content-id", "", "content ID (derived from the keyword when empty)")
	flags.StringVar(&opts.req.CustomPrompt, "prompt", "", "custom instructions for stages 2 to 4")
	flags.DurationVar(&opts.poll, "poll", time.Second, "status poll interval")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Minute, "overall deadline")
	return cmd
}

func runGenerate(cmd *cobra.Command, appInstance App, opts generateOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	appInstance.Start(ctx)
	state, err := appInstance.Generate(ctx, opts.req, opts.poll)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			appInstance.Logger().Info("generation canceled")
		}
		return fmt.Errorf("generate brief: %w", err)
	}
	if state.FinalBrief == nil {
		return errors.New("generate brief: no final brief produced")
	}
	appInstance.Logger().Info("brief generated",
		zap.String("run_id", state.RunID),
		zap.String("filename", state.FinalBrief.Filename),
	)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), state.FinalBrief.Filename)
	return err
}
