package daemon

import (
	"context"
	"time"

	"github.com/gudax/autobot"
)

// PositionWatcher drives the position monitor on a fixed interval.
type PositionWatcher struct {
	logger   autobot.Logger
	monitor  *autobot.PositionMonitor
	interval time.Duration
}

func RunPositionWatcher(
	ctx context.Context,
	logger autobot.Logger,
	monitor *autobot.PositionMonitor,
	interval time.Duration,
) *PositionWatcher {
	watcher := &PositionWatcher{
		logger:   logger,
		monitor:  monitor,
		interval: interval,
	}

	go watcher.loop(ctx)

	return watcher
}

func (pw *PositionWatcher) loop(ctx context.Context) {
	pw.logger.Infof(
		"running position watcher with [%v] interval",
		pw.interval,
	)

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pw.monitor.CheckOnce(ctx)
		case <-ctx.Done():
			pw.logger.Infof("terminating position watcher")
			return
		}
	}
}
