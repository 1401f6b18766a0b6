package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/helpwire/deskd/internal/appdir"
	"github.com/helpwire/deskd/internal/config"
	"github.com/helpwire/deskd/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	dataDirFlag := flag.String("data-dir", "", "data directory (overrides config)")
	flag.Parse()

	base := appdir.BaseDir()
	cfg, err := config.Load(appdir.ConfigPath(base))
	if err != nil {
		cfg = config.Default()
	}
	if cfg.DataDir != "" {
		base = cfg.DataDir
	}
	if *dataDirFlag != "" {
		base = *dataDirFlag
	}

	if err := appdir.EnsureDirs(base); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			DataDir:    base,
			Retention:  time.Duration(cfg.RetentionDays) * 24 * time.Hour,
			SweepDelay: time.Duration(cfg.SweepDelaySeconds) * time.Second,
		}),
	)

	app.Run()
}
