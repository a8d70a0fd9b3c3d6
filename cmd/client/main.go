package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dmitrijs2005/filevault/internal/client/cli"
	"github.com/dmitrijs2005/filevault/internal/client/client"
	"github.com/dmitrijs2005/filevault/internal/client/config"
	"github.com/dmitrijs2005/filevault/internal/client/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, args, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "filevault:", err)
		return 2
	}

	api, err := client.New(cfg.ServerURL, cfg.Timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "filevault:", err)
		return 2
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SessionFile), 0o700); err != nil {
		fmt.Fprintln(os.Stderr, "filevault:", err)
		return 1
	}
	sessions, db, err := session.Open(ctx, cfg.SessionFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "filevault: session store:", err)
		return 1
	}
	defer db.Close()

	app := cli.NewApp(cfg, api, sessions, os.Stdin, os.Stdout)
	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, "filevault:", err)
		if errors.Is(err, cli.ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}
