// Package app wires configuration into a running engine: gateway,
// store, risk state, background loops and the HTTP surface.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"catalyst/internal/alert"
	"catalyst/internal/broker"
	"catalyst/internal/broker/opend"
	"catalyst/internal/config"
	"catalyst/internal/engine"
	"catalyst/internal/logger"
	"catalyst/internal/risk"
	"catalyst/internal/scheduler"
	"catalyst/internal/session"
	"catalyst/internal/store"
	"catalyst/internal/store/sqlite"
	enginehttp "catalyst/internal/transport/http"
)

type App struct {
	cfg        *config.Config
	cfgPath    string
	st         store.Store
	gw         broker.Gateway
	book       *risk.Book
	breaker    *risk.Breaker
	eng        *engine.Engine
	sync       *engine.Synchronizer
	reconciler *engine.Reconciler
	httpSrv    *enginehttp.Server
}

// New builds the application from config without starting anything.
// cfgPath is retained for hot reload of the risk limits.
func New(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	st, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var gw broker.Gateway
	switch cfg.Broker.Mode {
	case "opend":
		gw = opend.New(cfg.Broker.Host, cfg.Broker.Port, cfg.Broker.AccountID, cfg.Broker.TradeEnv)
	default:
		gw = broker.NewPaper()
	}

	sinks := alert.Multi{alert.LogSink{}, store.AlertSink{Trail: st.Events()}}
	if tg := cfg.Notify.Telegram; tg.Enabled {
		sinks = append(sinks, alert.NewTelegram(tg.BotToken, tg.ChatID))
	}

	book := risk.NewBook(cfg.Risk.Limits())
	breaker := risk.NewBreaker()
	breaker.SetTransitionHandler(func(from, to risk.BreakerState, reason string) {
		sev := alert.SeverityWarning
		if to >= risk.BreakerEmergency {
			sev = alert.SeverityCritical
		}
		sinks.Emit(alert.New(sev, "breaker transition",
			"from", from.String(), "to", to.String(), "reason", reason))
	})

	guard := session.NewGuard(cfg.Session.ForceOpen || cfg.Broker.Mode == "paper")

	eng := engine.New(engine.Options{
		Gateway:      gw,
		Store:        st,
		Limits:       book,
		Breaker:      breaker,
		Guard:        guard,
		Alerts:       sinks,
		VerifySettle: cfg.Engine.VerifySettle(),
	})

	httpSrv, err := enginehttp.NewServer(enginehttp.ServerConfig{
		Addr:   cfg.App.HTTPAddr,
		Router: enginehttp.NewRouter(eng, st),
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &App{
		cfg:        cfg,
		cfgPath:    cfgPath,
		st:         st,
		gw:         gw,
		book:       book,
		breaker:    breaker,
		eng:        eng,
		sync:       engine.NewSynchronizer(gw, st, sinks),
		reconciler: engine.NewReconciler(gw, st, book, breaker, eng, sinks),
		httpSrv:    httpSrv,
	}, nil
}

// Engine exposes the engine for tests and replay harnesses.
func (a *App) Engine() *engine.Engine { return a.eng }

// Run connects the gateway and starts every long-lived task. It blocks
// until ctx is cancelled or a task fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.st.Close()

	if err := a.gw.Connect(ctx); err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}

	if a.cfgPath != "" {
		err := config.Watch(ctx, a.cfgPath, func(fresh *config.Config) {
			limits := a.book.Append(fresh.Risk.Limits())
			logger.Infof("risk limits updated to version %d", limits.Version)
		})
		if err != nil {
			logger.Warnf("config watch disabled: %v", err)
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		scheduler.Every(ctx, "order-sync", a.cfg.Engine.SyncInterval(), false, func(ctx context.Context) {
			// Detached from shutdown so an in-flight gateway call runs to
			// completion; the timeout still bounds the pass.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Engine.SyncInterval())
			defer cancel()
			if err := a.sync.Run(ctx); err != nil {
				logger.Warnf("order sync pass failed: %v", err)
			}
		})
		return nil
	})

	group.Go(func() error {
		// Run immediately so a restart converges on broker state before
		// any new intent is accepted against the stale cache.
		scheduler.Every(ctx, "reconcile", a.cfg.Engine.ReconcileInterval(), true, func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Engine.ReconcileInterval())
			defer cancel()
			if err := a.reconciler.Run(ctx); err != nil {
				logger.Warnf("reconcile pass failed: %v", err)
			}
		})
		return nil
	})

	logger.Infof("catalyst running env=%s broker=%s http=%s", a.cfg.App.Env, a.cfg.Broker.Mode, a.httpSrv.Addr())
	return group.Wait()
}
