package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gudax/autobot"
	"github.com/gudax/autobot/daemon"
	"github.com/gudax/autobot/logrus"
	"github.com/gudax/autobot/matchtrade"
	"github.com/gudax/autobot/postgres"
	"github.com/gudax/autobot/pubsub"
	"github.com/gudax/autobot/secret"
	"github.com/gudax/autobot/uuid"
)

const logoutTimeout = 1 * time.Minute

func main() {
	ctx, cancelCtx := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancelCtx()

	config, err := readConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "could not read config: [%v]", err)
		os.Exit(1)
	}

	logger := logrus.ConfigureStandardLogger(
		config.Logging.Format,
		config.Logging.Level,
	)

	postgresClient, err := connectPostgres(ctx, logger, &config.Database)
	if err != nil {
		logger.Fatalf("could not connect postgres: [%v]", err)
	}

	cipher, err := secret.NewCipher(config.Encryption.Key)
	if err != nil {
		logger.Fatalf("could not create credential cipher: [%v]", err)
	}

	gateway := matchtrade.NewGateway(logger, &matchtrade.Config{
		URL:     config.Broker.URL,
		Timeout: config.Broker.Timeout,
	})

	idService := &uuid.IDService{}

	accountRepository := postgres.NewAccountRepository(
		postgresClient,
		idService,
	)
	sessionRepository := postgres.NewSessionRepository(
		postgresClient,
		idService,
	)
	orderRepository := postgres.NewOrderRepository(postgresClient, idService)
	signalRepository := postgres.NewSignalRepository(
		postgresClient,
		idService,
	)

	eventService := connectEventService(ctx, logger, &config.Events)

	retryPolicy := autobot.RetryPolicy{
		MaxAttempts: config.Retry.MaxAttempts,
		BaseDelay:   config.Retry.BaseDelay,
		MaxDelay:    config.Retry.MaxDelay,
		Multiplier:  config.Retry.Multiplier,
	}

	locks := autobot.NewAccountLocks()

	sessionManager := autobot.NewSessionManager(
		logger,
		autobot.SessionManagerConfig{
			TTL:                config.Session.TTL,
			ExpiryMargin:       config.Session.ExpiryMargin,
			LoginParallelism:   config.Session.LoginParallelism,
			MaxRefreshFailures: config.Session.MaxRefreshFailures,
			RetryPolicy:        retryPolicy,
		},
		gateway,
		sessionRepository,
		idService,
		cipher,
		eventService,
		locks,
	)

	accounts, err := accountRepository.ActiveAccounts()
	if err != nil {
		logger.Fatalf("could not read active accounts: [%v]", err)
	}

	results := sessionManager.LoginAll(ctx, accounts)

	loggedIn := 0
	for _, result := range results {
		if result.Err != nil {
			logger.Warningf(
				"could not log in account [%v]: [%v]",
				result.Account.Email,
				result.Err,
			)
			continue
		}

		loggedIn++
	}

	logger.Infof(
		"logged in [%v] of [%v] active accounts",
		loggedIn,
		len(accounts),
	)

	daemon.RunSessionKeeper(
		ctx,
		logger,
		sessionManager,
		config.Session.RefreshInterval,
		config.Session.HealthInterval,
	)

	signalIntake := autobot.NewSignalIntake(signalRepository, idService)

	orchestrator := autobot.NewOrderOrchestrator(
		logger,
		autobot.OrchestratorConfig{
			DispatchParallelism:  config.Trading.DispatchParallelism,
			DispatchTimeout:      config.Trading.DispatchTimeout,
			ContractSize:         big.NewFloat(config.Trading.ContractSize),
			FallbackMarginPerLot: big.NewFloat(config.Trading.FallbackMarginPerLot),
			MinVolume:            big.NewFloat(config.Trading.MinVolume),
			VolumeStep:           big.NewFloat(config.Trading.VolumeStep),
			RetryPolicy:          retryPolicy,
		},
		sessionManager,
		gateway,
		orderRepository,
		signalIntake,
		idService,
		eventService,
		locks,
	)

	if config.Signals.Subscription != "" {
		_, err = pubsub.RunSignalListener(
			ctx,
			logger,
			config.Signals.Project,
			config.Signals.Subscription,
			orchestrator,
		)
		if err != nil {
			logger.Fatalf("could not run signal listener: [%v]", err)
		}
	} else {
		logger.Infof("signal subscription disabled")
	}

	monitor := autobot.NewPositionMonitor(
		logger,
		autobot.PositionMonitorConfig{
			MaxHoldingTime: config.Monitoring.MaxHoldingTime,
			RequestTimeout: config.Monitoring.RequestTimeout,
		},
		sessionManager,
		gateway,
		orderRepository,
		signalRepository,
		idService,
		eventService,
		locks,
	)

	daemon.RunPositionWatcher(ctx, logger, monitor, config.Monitoring.Interval)

	<-ctx.Done()

	logoutCtx, cancelLogoutCtx := context.WithTimeout(
		context.Background(),
		logoutTimeout,
	)
	defer cancelLogoutCtx()

	sessionManager.LogoutAll(logoutCtx)
}

func connectPostgres(
	ctx context.Context,
	logger autobot.Logger,
	config *Database,
) (*postgres.Client, error) {
	if err := postgres.RunMigration(
		logger,
		(*postgres.Config)(config),
	); err != nil {
		return nil, fmt.Errorf(
			"could not run postgres migration: [%v]",
			err,
		)
	}

	client, err := postgres.NewClient(
		ctx,
		(*postgres.Config)(config),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"could not create postgres client: [%v]",
			err,
		)
	}

	return client, nil
}

func connectEventService(
	ctx context.Context,
	logger autobot.Logger,
	config *Events,
) autobot.EventService {
	if config.Project == "" {
		logger.Infof("event publishing disabled")
		return &discardEvents{logger}
	}

	client, err := pubsub.NewClient(ctx, config.Project, config.Topic)
	if err != nil {
		logger.Fatalf("could not create pubsub client: [%v]", err)
	}

	return pubsub.NewEventService(client, logger)
}

type discardEvents struct {
	logger autobot.Logger
}

func (de *discardEvents) Publish(event *autobot.Event) {
	de.logger.Debugf("discarding event of type [%v]", event.Type)
}
