package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/voicectl/internal/catalog"
	"github.com/MrSnakeDoc/voicectl/internal/config"
	"github.com/MrSnakeDoc/voicectl/internal/gpu"
	"github.com/MrSnakeDoc/voicectl/internal/health"
	"github.com/MrSnakeDoc/voicectl/internal/httpserver"
	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/voicectl/internal/index"
	"github.com/MrSnakeDoc/voicectl/internal/logger"
	"github.com/MrSnakeDoc/voicectl/internal/metrics"
	"github.com/MrSnakeDoc/voicectl/internal/proxy"
	"github.com/MrSnakeDoc/voicectl/internal/redis"
	"github.com/MrSnakeDoc/voicectl/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/voicectl/internal/store/redis"
	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
	"github.com/MrSnakeDoc/voicectl/internal/utils"
	"github.com/MrSnakeDoc/voicectl/internal/version"
)

// journalWriteTimeout bounds one event write to Redis.
const journalWriteTimeout = 2 * time.Second

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	controller  *supervisor.Controller
	health      *scheduler.HealthMonitor
	journal     *scheduler.Journal
	redisClient *goredis.Client

	listening chan struct{}
	addr      net.Addr
}

// New wires every component from cfg. It connects to Redis when a journal
// address is configured and fails if it cannot.
func New(cfg *config.Config) (*App, error) {
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load service catalog: %w", err)
	}
	loggerClient.Info("service catalog loaded",
		logger.Strings("services", cat.Names()),
		logger.String("file", cfg.ServicesFile))

	var (
		redisClient *goredis.Client
		store       *redisstore.Store
		journal     *scheduler.Journal
	)
	if cfg.JournalEnabled() {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		redisClient, err = redis.New(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		store = redisstore.NewStore(redisClient, cfg.EventHistory)
		journal = scheduler.NewJournal(store, loggerClient.Named("journal"), journalWriteTimeout)
	} else {
		loggerClient.Info("VOICECTL_REDIS_ADDR not set, event journal disabled")
	}

	registry := supervisor.NewRegistry(cat)
	m := metrics.New(registry)

	opts := []supervisor.Option{
		supervisor.WithStopTimeout(cfg.StopTimeout),
		supervisor.WithLogger(loggerClient.Named("supervisor")),
		supervisor.WithObserver(m),
	}
	if journal != nil {
		opts = append(opts, supervisor.WithObserver(journal))
	}
	controller := supervisor.NewController(registry, opts...)

	healthTrigger := make(chan struct{}, 1)
	monitor := scheduler.NewHealthMonitor(
		controller,
		health.NewChecker(cfg.HealthTimeout),
		store,
		index.NewMemoryIndex(),
		m,
		loggerClient.Named("health"),
		cfg.HealthInterval,
		healthTrigger,
	)

	proxyClient := proxy.NewClient(proxy.Config{
		Transcribe:     endpointFor(cat, "whisper", "/transcribe", loggerClient),
		Synthesize:     endpointFor(cat, "tts", "/synthesize", loggerClient),
		Timeout:        cfg.ProxyTimeout,
		ConnectTimeout: cfg.ProxyConnectTimeout,
	})

	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		RequestTimeout:  cfg.RequestTimeout,
		ProxyRateBurst:  cfg.ProxyRateBurst,
		ProxyRatePerMin: cfg.ProxyRatePerMin,
		Controller:      controller,
		Health:          monitor,
		GPU:             gpu.NewMonitor(cfg.GPUCommand),
		Proxy:           proxyClient,
		Store:           store,
		Metrics:         m,
		HealthTrigger:   healthTrigger,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		controller:  controller,
		health:      monitor,
		journal:     journal,
		redisClient: redisClient,
		listening:   make(chan struct{}),
	}, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.ServicesFile == "" {
		return catalog.Default(cfg.Root), nil
	}
	return catalog.NewLoader(cfg.ServicesFile).Load()
}

// endpointFor locates a proxied operation on the named service. A catalog
// without that service leaves the endpoint empty and the proxy answers 502.
func endpointFor(cat *catalog.Catalog, name, fallbackPath string, log logger.Logger) proxy.Endpoint {
	def, ok := cat.Lookup(name)
	if !ok {
		log.Warn("proxy target not in catalog", logger.String("service", name))
		return proxy.Endpoint{Service: name}
	}
	path := def.Endpoint
	if path == "" {
		path = fallbackPath
	}
	return proxy.Endpoint{Service: name, BaseURL: proxy.BaseURL(def.Port), Path: path}
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// everything down in order.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("🚀 Starting voicectl %s on %s", version.Version, a.cfg.ListenAddr)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to listen on %s: %w", a.cfg.ListenAddr, err), a.closeResources())
	}
	a.addr = ln.Addr()
	close(a.listening)

	if a.journal != nil {
		a.journal.Start()
	}
	a.health.Start(ctx)
	a.logger.Info("health monitor started",
		logger.Duration("interval", a.cfg.HealthInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("⏳ Shutting down gracefully...")
		return a.shutdown()
	})
	return g.Wait()
}

// Addr returns the bound listen address once Run is serving.
func (a *App) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-a.listening:
		return a.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *App) shutdown() error {
	a.health.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	}

	if a.cfg.StopAllOnExit {
		a.logger.Info("stopping supervised services")
		if err := a.controller.StopAll(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop services: %w", err))
		}
	}

	errs = append(errs, a.closeResources())
	a.logger.Info("✅ voicectl stopped cleanly")
	return errors.Join(errs...)
}

// closeResources flushes the journal, closes Redis and syncs the logger.
func (a *App) closeResources() error {
	if a.journal != nil {
		a.journal.Stop()
	}
	if a.redisClient != nil {
		utils.CloseLogged(a.redisClient, a.logger, "redis")
		a.logger.Info("✅ Redis closed")
	}
	// Sync fails harmlessly on terminals (ENOTTY/EINVAL); nothing to report.
	_ = a.logger.Sync()
	return nil
}
