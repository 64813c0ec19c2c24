package daemon

import (
	"context"
	"time"

	"github.com/gudax/autobot"
)

// SessionKeeper keeps broker sessions alive in the background. One loop
// refreshes tokens ahead of expiry, the other sweeps session health.
type SessionKeeper struct {
	logger          autobot.Logger
	sessionManager  *autobot.SessionManager
	refreshInterval time.Duration
	healthInterval  time.Duration
}

func RunSessionKeeper(
	ctx context.Context,
	logger autobot.Logger,
	sessionManager *autobot.SessionManager,
	refreshInterval time.Duration,
	healthInterval time.Duration,
) *SessionKeeper {
	keeper := &SessionKeeper{
		logger:          logger,
		sessionManager:  sessionManager,
		refreshInterval: refreshInterval,
		healthInterval:  healthInterval,
	}

	go keeper.refreshLoop(ctx)
	go keeper.healthLoop(ctx)

	return keeper
}

func (sk *SessionKeeper) refreshLoop(ctx context.Context) {
	sk.logger.Infof(
		"running session refresh loop with [%v] interval",
		sk.refreshInterval,
	)

	ticker := time.NewTicker(sk.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sk.sessionManager.RefreshAll(ctx)
		case <-ctx.Done():
			sk.logger.Infof("terminating session refresh loop")
			return
		}
	}
}

func (sk *SessionKeeper) healthLoop(ctx context.Context) {
	sk.logger.Infof(
		"running session health loop with [%v] interval",
		sk.healthInterval,
	)

	ticker := time.NewTicker(sk.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			report := sk.sessionManager.HealthCheck(ctx)

			sk.logger.Infof(
				"session health: [%v] healthy, "+
					"[%v] expiring soon, [%v] expired",
				report.Healthy,
				report.ExpiringSoon,
				report.Expired,
			)
		case <-ctx.Done():
			sk.logger.Infof("terminating session health loop")
			return
		}
	}
}
