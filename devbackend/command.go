package devbackend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"nfviz.dev/core/log"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:   "dev-backend",
		Usage:  "run a scripted execution backend for local development",
		Action: Run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "address to listen on",
				Value: "127.0.0.1:5000",
			},
			&cli.DurationFlag{
				Name:  "advance-every",
				Usage: "how often the simulated pipeline moves forward once handed off",
				Value: 3 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "frame-delay",
				Usage: "pause between two frames of a step",
				Value: 150 * time.Millisecond,
			},
			&cli.StringSliceFlag{
				Name:  "fail",
				Usage: "make a step fail, as step=message",
			},
		},
	}
}

func Run(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.FromContext(ctx)

	opts := DefaultOptions()
	opts.FrameDelay = cmd.Duration("frame-delay")
	opts.Fail = make(map[string]string)
	for _, f := range cmd.StringSlice("fail") {
		step, msg, ok := strings.Cut(f, "=")
		if !ok || step == "" {
			return fmt.Errorf("invalid --fail value %q, expected step=message", f)
		}
		opts.Fail[step] = msg
	}

	b := New(opts, logger)
	go b.simulate(ctx, cmd.Duration("advance-every"))

	srv := &http.Server{
		Addr:    cmd.String("listen"),
		Handler: b.Router(),
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	logger.Info("starting dev backend", "address", srv.Addr, "project", opts.Project)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// simulate advances the pipeline on every tick once the handoff step ran.
func (b *Backend) simulate(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if b.HandedOff() && !b.Advance() {
				return
			}
		}
	}
}
