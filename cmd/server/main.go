package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/alerts"
	"github.com/sudo-init-do/circle/internal/app"
	"github.com/sudo-init-do/circle/internal/auth"
	"github.com/sudo-init-do/circle/internal/bot"
	"github.com/sudo-init-do/circle/internal/catalog"
	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/config"
	"github.com/sudo-init-do/circle/internal/deals"
	"github.com/sudo-init-do/circle/internal/httpapi"
	"github.com/sudo-init-do/circle/internal/logging"
	"github.com/sudo-init-do/circle/internal/lots"
	"github.com/sudo-init-do/circle/internal/questionnaire"
	"github.com/sudo-init-do/circle/internal/telemetry"
	"github.com/sudo-init-do/circle/internal/wizard"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, "circle")
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	cat, err := catalog.Default()
	if err != nil {
		return err
	}

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, closeSessions, err := app.OpenSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeSessions() }()

	hub := channel.NewHub(logger.Named("hub"))

	var notifier alerts.Notifier = alerts.NewDirect(hub, logger.Named("alerts"))
	if cfg.NotifyMode == "queue" {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		notifier = alerts.NewQueue(client, logger.Named("alerts"))

		worker := alerts.NewWorker(redisOpt, hub, logger.Named("alerts"))
		if err := worker.Start(); err != nil {
			return err
		}
		defer worker.Shutdown()
	}

	lotService := lots.NewService(store, notifier, cfg.AdminIDs, logger.Named("lots"))
	dealService := deals.NewService(store, notifier, logger.Named("deals"))

	onboarding, err := questionnaire.Flow(cat, store)
	if err != nil {
		return err
	}
	lotFlow, err := lotService.Flow(cat)
	if err != nil {
		return err
	}
	engine := wizard.NewEngine(sessions, hub, logger.Named("wizard"), onboarding, lotFlow)

	router := bot.New(bot.Deps{
		Store:      store,
		Engine:     engine,
		Channel:    hub,
		Lots:       lotService,
		Deals:      dealService,
		Catalog:    cat,
		Log:        logger.Named("bot"),
		ChannelURL: cfg.ChannelURL,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	httpapi.NewServer(router, hub, lotService, store, issuer, logger.Named("http")).Register(e)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("port", cfg.Port), zap.String("db", cfg.DBDriver), zap.String("notify", cfg.NotifyMode))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
