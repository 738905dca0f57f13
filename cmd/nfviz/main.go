package main

import (
	"context"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v3"

	"nfviz.dev/core/devbackend"
	"nfviz.dev/core/headless"
	"nfviz.dev/core/log"
	"nfviz.dev/core/server"
)

func main() {
	cmd := &cli.Command{
		Name:    "nfviz",
		Usage:   "drive and watch the nextflow infrastructure pipeline",
		Version: versioninfo.Short(),
		Commands: []*cli.Command{
			server.Command(),
			headless.Command(),
			devbackend.Command(),
		},
	}

	ctx := context.Background()
	logger := log.New("nfviz")
	ctx = log.IntoContext(ctx, logger.With("command", cmd.Name))

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}
}
