package main

import (
	"errors"
	"fmt"
	"os"

	"mailsprint/app"
	"mailsprint/config"
	"mailsprint/runner"

	"github.com/spf13/cobra"
)

var (
	runSequence   string
	runDryRun     bool
	runLive       bool
	runMax        int
	runClient     string
	runEmail      string
	runBypassTime bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one tick of a sequence",
	Long: `Advances each eligible lead by at most one step, then exits. Designed
to be invoked repeatedly by cron or the daemon scheduler.

Dry by default. Live mode requires both --live and the arming
environment variable SEQ_RUNNER_LIVE=YES; without the latter the
command refuses with exit code 2.`,
	Run: func(cmd *cobra.Command, args []string) {
		if runDryRun && runLive {
			fmt.Fprintln(os.Stderr, "--dry-run and --live are mutually exclusive")
			os.Exit(1)
		}
		dryRun := !runLive

		application, err := app.Build()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		summary, err := application.Runner.RunOnce(cmd.Context(), runner.Options{
			SequenceID:  runSequence,
			DryRun:      dryRun,
			LiveArmed:   config.AppConfig.LiveArmed,
			MaxActions:  runMax,
			Client:      runClient,
			EmailFilter: runEmail,
			BypassTime:  runBypassTime,
		})
		if err != nil {
			if errors.Is(err, runner.ErrLiveNotArmed) {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		if summary.Blocked != "" {
			application.Logger.Infof("Send window closed (%s); nothing attempted.", summary.Blocked)
			return
		}
		summary.Log(application.Logger, runClient, runSequence)
	},
}

func init() {
	runCmd.Flags().StringVar(&runSequence, "sequence", "opener_followups", "sequence id to run")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "simulate only; no sends, counters, or CRM writes (default)")
	runCmd.Flags().BoolVar(&runLive, "live", false, "send for real; requires SEQ_RUNNER_LIVE=YES")
	runCmd.Flags().IntVar(&runMax, "max", 50, "maximum actionable steps per invocation")
	runCmd.Flags().StringVar(&runClient, "client", "", "only process leads for this client")
	runCmd.Flags().StringVar(&runEmail, "email", "", "only process the lead with this email")
	runCmd.Flags().BoolVar(&runBypassTime, "bypass-time", false, "skip the day/time window check for this invocation")
	rootCmd.AddCommand(runCmd)
}
