package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"mailsprint/app"
	"mailsprint/config"
	"mailsprint/dispatch"
	"mailsprint/models"
	"mailsprint/sequence"
	"mailsprint/steps"

	"github.com/spf13/cobra"
)

var (
	dispatchSequence string
	dispatchLive     bool
	dispatchClient   string
	dispatchMax      int
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send opener emails in parallel across sender inboxes",
	Long: `Loads untouched leads and fans the first send step of the sequence out
across the active sender inboxes, one worker per inbox, with paced
sends. Quota and idempotency guarantees are identical to the
sequential runner.

Dry by default. Live requires both --live and SEQ_RUNNER_LIVE=YES.`,
	Run: func(cmd *cobra.Command, args []string) {
		application, err := app.Build()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		dryRun := !dispatchLive
		if dispatchLive && !config.AppConfig.LiveArmed {
			fmt.Fprintln(os.Stderr, "refusing to run live: live mode is not armed (set SEQ_RUNNER_LIVE=YES)")
			os.Exit(2)
		}

		def, err := application.Sequences.Get(dispatchSequence)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		var sendCfg *sequence.StepConfig
		for i := range def.Steps {
			if def.Steps[i].Type == sequence.TypeSendEmail {
				sendCfg = &def.Steps[i]
				break
			}
		}
		if sendCfg == nil {
			fmt.Fprintf(os.Stderr, "sequence %q has no send step\n", dispatchSequence)
			os.Exit(1)
		}
		step, err := steps.New(sendCfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		var senders []models.Sender
		if err := config.DB.Where("is_active = ?", true).Find(&senders).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to load senders: %v\n", err)
			os.Exit(1)
		}
		inboxes := make([]string, 0, len(senders))
		for _, s := range senders {
			inboxes = append(inboxes, s.FromEmail)
		}
		if len(inboxes) == 0 {
			fmt.Fprintln(os.Stderr, "no active sender inboxes configured")
			os.Exit(1)
		}

		leads, err := application.CRM.LoadLeads(dispatchClient)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fresh := make([]models.Lead, 0, len(leads))
		for _, lead := range leads {
			switch lead.MessagingStatus {
			case "", "untouched", "new", "Untouched", "New":
			default:
				continue
			}
			fresh = append(fresh, lead)
			if dispatchMax > 0 && len(fresh) >= dispatchMax {
				break
			}
		}
		if len(fresh) == 0 {
			application.Logger.Infof("No untouched leads for client %q; nothing to do.", dispatchClient)
			return
		}
		application.Logger.Infof("Dispatching %d opener emails across %d inboxes (dry_run=%t)", len(fresh), len(inboxes), dryRun)

		deps := application.Runner.Deps
		rotate := func() (string, error) {
			s, err := application.Mailer.RotateSender()
			if err != nil {
				return "", err
			}
			return s.FromEmail, nil
		}

		minGap := time.Duration(config.AppConfig.SendInterval-config.AppConfig.SendJitter) * time.Second
		if minGap < 0 {
			minGap = 0
		}
		d := &dispatch.Dispatcher{
			Assign: func(leadID string) (string, error) {
				return application.CRM.AssignSender(leadID, rotate)
			},
			Send: func(ctx context.Context, lead *models.Lead, inbox string) (bool, error) {
				lead.AssignedSender = inbox
				res, err := step.Run(ctx, lead, &deps, dispatchSequence, dryRun)
				if err != nil {
					return false, err
				}
				if res.Status != steps.StatusOK || res.Notes != "sent" {
					return false, nil
				}
				if err := application.CRM.UpdateFields(lead.Identity(), map[string]string{
					"Messaging Status":    "Opener Sent",
					"Owner / Assigned To": inbox,
				}); err != nil {
					application.Logger.WithError(err).Warnf("could not stamp opener fields for %s", lead.Identity())
				}
				return true, nil
			},
			Logger: application.Logger,
			MinGap: minGap,
			Jitter: time.Duration(2*config.AppConfig.SendJitter) * time.Second,
		}

		stats := d.Run(cmd.Context(), fresh, inboxes)
		application.Logger.Infof("Dispatch finished: %d sent, %d skipped, %d errors", stats.Sent, stats.Skipped, stats.Errors)
		for inbox, n := range stats.PerInbox {
			application.Logger.Infof("  %s: %d", inbox, n)
		}
	},
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchSequence, "sequence", "opener_outreach", "sequence whose send step to dispatch")
	dispatchCmd.Flags().BoolVar(&dispatchLive, "live", false, "send for real; requires SEQ_RUNNER_LIVE=YES")
	dispatchCmd.Flags().StringVar(&dispatchClient, "client", "", "only process leads for this client")
	dispatchCmd.Flags().IntVar(&dispatchMax, "max", 0, "cap on leads to dispatch (0 = daily limit via quota)")
	rootCmd.AddCommand(dispatchCmd)
}
