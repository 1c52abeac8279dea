package main

import (
	"context"

	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/urfave/cli/v2"
	"github.com/yomuyume/yomuyume/pkg/scanner"
)

func scanAction(c *cli.Context) error {
	log := logger.New()
	ctx, cancel := context.WithCancel(log.WithContext(c.Context))
	defer cancel()

	cfg, db, err := setup(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	graceful := signals.Setup()
	go func() {
		select {
		case <-graceful:
			log.Info("interrupted, stopping after the current title")
			cancel()
		case <-ctx.Done():
		}
	}()

	skipped := 0
	hooks := scanner.Hooks{
		Progress: func(done, total int) {
			log.Debug("scan progress", logger.Data{"done": done, "total": total})
		},
		Skipped: func(context.Context, string, error) {
			skipped++
		},
	}
	if _, err := scanner.New(cfg, db).Run(ctx, hooks); err != nil {
		return err
	}

	if skipped > 0 {
		log.Warn("some categories or titles were skipped", logger.Data{"skipped": skipped})
	}
	return nil
}
