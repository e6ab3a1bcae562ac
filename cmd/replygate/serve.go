package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/replygate/replygate/internal/assistant"
	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/channel/adapters/avito"
	"github.com/replygate/replygate/internal/channel/adapters/vk"
	"github.com/replygate/replygate/internal/channel/adapters/widget"
	"github.com/replygate/replygate/internal/config"
	"github.com/replygate/replygate/internal/conversation"
	"github.com/replygate/replygate/internal/db"
	"github.com/replygate/replygate/internal/dedup"
	"github.com/replygate/replygate/internal/delivery"
	"github.com/replygate/replygate/internal/generation"
	"github.com/replygate/replygate/internal/handlers"
	"github.com/replygate/replygate/internal/inbound"
	"github.com/replygate/replygate/internal/logger"
	"github.com/replygate/replygate/internal/message"
	"github.com/replygate/replygate/internal/schedule"
	"github.com/replygate/replygate/internal/server"
	"github.com/replygate/replygate/internal/toolexec"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideDedupCache,
			channel.NewStore,
			conversation.NewService,
			provideResolver,
			message.NewService,
			assistant.NewService,
			schedule.NewService,
			provideRouter,
			generation.NewCuratedStore,
			provideGenerationProvider,
			provideToolExecutor,
			provideOrchestrator,
			provideChannelRegistry,
			provideDeliveryService,
			provideInboundProcessor,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideWidgetHandler),
			provideServerHandler(provideVKWebhook),
			provideServerHandler(provideAvitoWebhook),
			provideServer,
		),
		fx.Invoke(
			startDedupSweeper,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideDedupCache(log *slog.Logger, cfg config.Config) *dedup.Cache {
	return dedup.NewCache(log, time.Duration(cfg.Dedup.TTLHours)*time.Hour)
}

func provideResolver(log *slog.Logger, svc *conversation.Service) *conversation.Resolver {
	return conversation.NewResolver(log, svc)
}

func provideRouter(log *slog.Logger, svc *assistant.Service, sched *schedule.Service) *assistant.Router {
	return assistant.NewRouter(log, svc, sched)
}

func provideGenerationProvider(log *slog.Logger, cfg config.Config) generation.Provider {
	return generation.NewOpenAIProvider(log, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
}

func provideToolExecutor(log *slog.Logger, convService *conversation.Service) *toolexec.Executor {
	exec := toolexec.NewExecutor(log)
	exec.Register("handoff_to_operator", toolexec.HandoffToOperator(convService))
	exec.Register("get_current_time", toolexec.CurrentTime())
	return exec
}

func provideOrchestrator(log *slog.Logger, provider generation.Provider, curated *generation.CuratedStore, convService *conversation.Service, tools *toolexec.Executor, cfg config.Config) *generation.Orchestrator {
	return generation.NewOrchestrator(
		log, provider, curated, convService, tools,
		time.Duration(cfg.Generation.PollIntervalSeconds)*time.Second,
		cfg.Generation.MaxPollAttempts,
	)
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config) *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(vk.NewAdapter(log, cfg.VK))
	registry.MustRegister(avito.NewAdapter(log, cfg.Avito))
	registry.MustRegister(widget.NewAdapter(log))
	return registry
}

func provideDeliveryService(log *slog.Logger, messages *message.Service, registry *channel.Registry, cfg config.Config) *delivery.Service {
	return delivery.NewService(log, messages, registry,
		time.Duration(cfg.Delivery.RateLimitBackoffSeconds)*time.Second)
}

func provideInboundProcessor(
	log *slog.Logger,
	cache *dedup.Cache,
	channels *channel.Store,
	resolver *conversation.Resolver,
	messages *message.Service,
	router *assistant.Router,
	assistants *assistant.Service,
	orchestrator *generation.Orchestrator,
	deliverer *delivery.Service,
) *inbound.Processor {
	return inbound.NewProcessor(log, cache, channels, resolver, messages, router, assistants, orchestrator, deliverer)
}

func providePingHandler() *handlers.PingHandler {
	return handlers.NewPingHandler()
}

func provideWidgetHandler(log *slog.Logger, channels *channel.Store, processor *inbound.Processor) *handlers.WidgetHandler {
	return handlers.NewWidgetHandler(log, channels, processor)
}

func provideVKWebhook(log *slog.Logger, channels *channel.Store, processor *inbound.Processor) *vk.Webhook {
	return vk.NewWebhook(log, channels, processor)
}

func provideAvitoWebhook(log *slog.Logger, channels *channel.Store, processor *inbound.Processor) *avito.Webhook {
	return avito.NewWebhook(log, channels, processor)
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

type gateServer struct {
	echo *echo.Echo
	addr string
}

func (s *gateServer) Start() error                   { return s.echo.Start(s.addr) }
func (s *gateServer) Stop(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func provideServer(params serverParams) *gateServer {
	e := server.New(params.Logger)
	for _, h := range params.Handlers {
		if h != nil {
			h.Register(e)
		}
	}
	addr := params.Config.Server.Addr
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	return &gateServer{echo: e, addr: addr}
}

func startDedupSweeper(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, cache *dedup.Cache) error {
	spec := cfg.Dedup.SweepSpec
	if spec == "" {
		spec = "@hourly"
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { cache.Sweep() }); err != nil {
		return fmt.Errorf("dedup sweep spec %q: %w", spec, err)
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			log.Info("dedup sweeper scheduled", slog.String("spec", spec))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *gateServer, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
