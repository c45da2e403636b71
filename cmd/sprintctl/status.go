package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"mailsprint/app"
	"mailsprint/config"

	"github.com/spf13/cobra"
)

var (
	statusInbox     string
	statusCheckLive bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show send window status and today's quotas",
	Long: `Prints whether sending is allowed right now, the active rules, and
today's counters. Never sends email. With --check-live the check is
performed live and increments counters if allowed.

Exit code 0 when sending is allowed, 1 when blocked.`,
	Run: func(cmd *cobra.Command, args []string) {
		application, err := app.Build()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		ctx := cmd.Context()
		allowed, reason := application.Policy.Evaluate(ctx, statusInbox, !statusCheckLive, false)

		counters, err := application.Policy.Snapshot(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read counters: %v\n", err)
			os.Exit(1)
		}

		controls := application.Policy.Controls()
		verdict := "NO"
		if allowed {
			verdict = "YES"
		}

		fmt.Println("=== Send Window Status ===")
		fmt.Printf("Now:           %s (%s)\n", time.Now().Format("2006-01-02 15:04:05"), controls.Timezone)
		fmt.Printf("Controls file: %s\n", config.AppConfig.ControlsPath)
		fmt.Printf("Allowed now?:  %s  (reason: %s)\n", verdict, reason)
		fmt.Println()
		fmt.Println("--- Rules ---")
		fmt.Printf("Enabled:       %t\n", controls.Enabled())
		fmt.Printf("Days allowed:  %s\n", strings.Join(controls.DaysAllowed, ", "))
		fmt.Printf("Time window:   %s - %s (%s)\n", controls.StartTime, controls.EndTime, controls.Timezone)
		if controls.DailyLimit != nil {
			fmt.Printf("Daily limit:   %d\n", *controls.DailyLimit)
		}
		if controls.PerInboxLimit != nil {
			fmt.Printf("Per-inbox limit: %d\n", *controls.PerInboxLimit)
		}
		fmt.Println()
		fmt.Println("--- Today ---")
		fmt.Printf("Date:          %s\n", counters.Date)
		fmt.Printf("Total sent:    %d\n", counters.Total)
		if controls.DailyLimit != nil {
			remaining := *controls.DailyLimit - counters.Total
			if remaining < 0 {
				remaining = 0
			}
			fmt.Printf("Remaining:     %d\n", remaining)
		}
		if statusInbox != "" {
			used := counters.PerInbox[statusInbox]
			fmt.Printf("Inbox %q sent: %d\n", statusInbox, used)
			if controls.PerInboxLimit != nil {
				remaining := *controls.PerInboxLimit - used
				if remaining < 0 {
					remaining = 0
				}
				fmt.Printf("Inbox remaining: %d\n", remaining)
			}
		} else if len(counters.PerInbox) > 0 {
			fmt.Println("Per-inbox counts:")
			inboxes := make([]string, 0, len(counters.PerInbox))
			for inbox := range counters.PerInbox {
				inboxes = append(inboxes, inbox)
			}
			sort.Strings(inboxes)
			for _, inbox := range inboxes {
				fmt.Printf("  - %s: %d\n", inbox, counters.PerInbox[inbox])
			}
		}

		if statusCheckLive {
			fmt.Println("\nNote: --check-live increments counters if allowed.")
		}

		if !allowed {
			os.Exit(1)
		}
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusInbox, "inbox", "", "inbox identifier/email to check per-inbox limits")
	statusCmd.Flags().BoolVar(&statusCheckLive, "check-live", false, "perform a live check; increments counters if allowed")
	rootCmd.AddCommand(statusCmd)
}
