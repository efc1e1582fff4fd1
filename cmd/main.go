package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"go-message-broadcaster/internal/application/facade"
	"go-message-broadcaster/internal/infrastructure/config"
	"go-message-broadcaster/internal/infrastructure/hub"
	"go-message-broadcaster/internal/infrastructure/logger"
	"go-message-broadcaster/internal/infrastructure/metrics"
	"go-message-broadcaster/internal/infrastructure/server"
	"go-message-broadcaster/web"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "broadcaster: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	lCfg, err := cfg.Log.LoggerConfig()
	if err != nil {
		return err
	}
	log := logger.NewLogrusLogger(lCfg)

	if lCfg.Level == logger.LevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	sctx := WithSignal(ctx)

	m := metrics.New()
	hubInstance := hub.New(log, hub.WithRecorder(m))

	// Start the hub first
	if err := hubInstance.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	service := facade.NewBroadcastApplicationService(hubInstance, log)
	router := InitRouter(cfg, hubInstance, service, m, staticFiles(cfg, log), log)
	httpSrv := server.NewHTTPServer(cfg.Server.Addr(), router, cfg.Server.ReadTimeout, cfg.Server.IdleTimeout)

	app := newApplication(log, cfg, configPath, httpSrv, hubInstance)
	return app.Run(sctx)
}

func staticFiles(cfg *config.Config, log logger.Logger) fs.FS {
	if cfg.Server.StaticDir != "" {
		log.Infof("serving client from %s", cfg.Server.StaticDir)
		return os.DirFS(cfg.Server.StaticDir)
	}
	return web.Static()
}

type Application struct {
	logger     logger.Logger
	cfg        *config.Config
	configPath string
	httpSrv    server.Server
	hub        *hub.Hub
}

func newApplication(
	logger logger.Logger,
	cfg *config.Config,
	configPath string,
	httpSrv server.Server,
	hubInstance *hub.Hub,
) *Application {
	return &Application{
		logger:     logger.WithField("app", "broadcaster"),
		cfg:        cfg,
		configPath: configPath,
		httpSrv:    httpSrv,
		hub:        hubInstance,
	}
}

// Run serves until ctx is cancelled or the listener fails, then shuts the
// hub and the server down within the configured timeout.
func (app *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		app.logger.Infof("listening on %s", app.cfg.Server.Addr())
		err := app.httpSrv.Start(egCtx)
		// A listener failure must also release the shutdown goroutine.
		cancel()
		return err
	})

	if app.configPath != "" {
		eg.Go(func() error {
			return config.Watch(egCtx, app.configPath, app.logger, app.reload)
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()

		gracefulshutdownCtx, shutdownCancel := context.WithTimeout(
			context.Background(),
			app.cfg.Server.ShutdownTimeout,
		)
		defer shutdownCancel()

		// Stop hub first so every client gets a close frame.
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	app.logger.Info("shutdown complete")
	return nil
}

// reload applies the settings that can change without a restart. Only the
// log level qualifies; everything else is read once at startup.
func (app *Application) reload(cfg *config.Config) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		app.logger.Errorf("ignoring log level %q: %v", cfg.Log.Level, err)
		return
	}
	app.logger.SetLevel(level)
	app.logger.Infof("log level set to %s", level)
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
