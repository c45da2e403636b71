package worker

import (
	"context"
	"log"

	"mailsprint/runner"

	"github.com/robfig/cron/v3"
)

// TickWorker re-invokes the runner on a cron schedule. The runner is
// single-shot by design; this is the external scheduler it expects.
type TickWorker struct {
	Runner   *runner.Runner
	Schedule string
	Options  runner.Options
	Logger   *log.Logger
}

func NewTickWorker(r *runner.Runner, schedule string, opts runner.Options, logger *log.Logger) *TickWorker {
	return &TickWorker{
		Runner:   r,
		Schedule: schedule,
		Options:  opts,
		Logger:   logger,
	}
}

func (tw *TickWorker) Start(ctx context.Context) {
	tw.Logger.Printf("Tick worker starting with schedule %q", tw.Schedule)

	c := cron.New()
	_, err := c.AddFunc(tw.Schedule, func() {
		summary, err := tw.Runner.RunOnce(ctx, tw.Options)
		if err != nil {
			tw.Logger.Printf("Tick failed: %v", err)
			return
		}
		if summary.Blocked != "" {
			tw.Logger.Printf("Tick skipped: send window closed (%s)", summary.Blocked)
			return
		}
		tw.Logger.Printf("Tick done: %d leads, %d actions, %d ok", summary.LeadsLoaded, summary.Actions, summary.OK)
	})
	if err != nil {
		tw.Logger.Printf("Invalid tick schedule %q: %v", tw.Schedule, err)
		return
	}

	c.Start()
	<-ctx.Done()
	tw.Logger.Println("Tick worker shutting down...")
	<-c.Stop().Done()
}
