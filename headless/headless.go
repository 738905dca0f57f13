package headless

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"nfviz.dev/core/app"
	"nfviz.dev/core/config"
	"nfviz.dev/core/log"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "run the pipeline and print progress to the terminal",
		Action: Run,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "monitor",
				Usage: "only watch a pipeline that was launched elsewhere",
			},
		},
		Description: `
Uses the same NFVIZ_* environment variables as the serve command.
Press Ctrl-C once to stop the run.
`,
	}
}

func Run(ctx context.Context, cmd *cli.Command) error {
	logger := log.FromContext(ctx)

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	h, err := a.Backend.WaitReady(ctx, cfg.Backend.ReadyTimeout)
	if err != nil {
		return err
	}
	logger.Info("backend ready", "url", cfg.Backend.URL, "project", h.Project)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	return Drive(ctx, a, os.Stdout, cmd.Bool("monitor"), sig)
}

// Drive starts a run (or monitoring) on a, prints every change to w until
// the orchestrator stops, and finishes with a summary. A value on stop
// aborts the run.
func Drive(ctx context.Context, a *app.App, w io.Writer, monitor bool, stop <-chan os.Signal) error {
	p := NewPrinter(w, a.Registry)
	started := time.Now()
	cursor := a.Store.Snapshot().Seq
	p.cursor = cursor

	followCtx, cancel := context.WithCancel(ctx)
	followed := make(chan error, 1)
	go func() {
		followed <- a.Store.Follow(followCtx, cursor, p.Change)
	}()

	if monitor {
		if _, err := a.Orchestrator.Monitor(); err != nil {
			cancel()
			<-followed
			return err
		}
	} else {
		a.Orchestrator.RunAll()
	}

	done := make(chan error, 1)
	go func() {
		done <- a.Orchestrator.Wait(ctx)
	}()

	var err error
	select {
	case <-stop:
		p.Notice("stopping...")
		a.Orchestrator.Stop()
		err = <-done
	case err = <-done:
	}

	// a stopped step records its abort after the session is already done
	if derr := a.Orchestrator.Drain(ctx); err == nil {
		err = derr
	}

	cancel()
	<-followed

	// print whatever landed after the follower was cancelled
	rest, cerr := a.Store.Changes(context.WithoutCancel(ctx), p.Cursor(), 0)
	if cerr == nil {
		for _, c := range rest {
			p.Change(c)
		}
	}

	p.Summary(a.Store.Snapshot(), started)
	return err
}
