package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/BDNK1/ivrflow/plugins/ari"
	"github.com/BDNK1/ivrflow/plugins/calltrack"
	"github.com/BDNK1/ivrflow/plugins/http"
	"github.com/BDNK1/ivrflow/runtime"
	"github.com/BDNK1/ivrflow/runtime/engine"
	"github.com/BDNK1/ivrflow/runtime/engine/loader"
	"github.com/BDNK1/ivrflow/runtime/engine/resolver"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Asterisk and run flows for incoming calls",
	Long: `Serve loads the flows directory, connects to the ARI event stream and
runs the flow registered for the extension of every call entering the
configured Stasis applications. Extensions without a local flow are fetched
from the platform API when flows.platform_url is set.

Example:
  ivrflow serve --config ivrflow.yaml
`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, l, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := runtime.SetupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			l.Warn("Telemetry shutdown failed", "error", err)
		}
	}()
	l = tel.Logger(l)
	slog.SetDefault(l)

	app, err := newApp(l, cfg)
	if err != nil {
		return err
	}

	invoker, err := http.New(cfg.PluginConfig("http"))
	if err != nil {
		return err
	}
	if err := app.Container.RegisterPlugin("http", invoker); err != nil {
		return err
	}

	var tracker runtime.CallTracker
	if raw := cfg.PluginConfig("calltrack"); raw != nil {
		t, err := calltrack.New(raw)
		if err != nil {
			return err
		}
		if err := app.Container.RegisterPlugin("calltrack", t); err != nil {
			return err
		}
		tracker = t
	} else {
		l.Info("Call tracking disabled")
	}

	opts := engine.OptionsFromConfig(cfg.Engine)
	executor := engine.NewStepExecutor(resolver.NewEvaluator(l), invoker, l, opts)
	interpreter := engine.NewInterpreter(l, executor, tracker, opts)
	dispatcher := engine.NewDispatcher(l, app, interpreter, cfg.Engine.NotFoundPrompt)

	asterisk, err := ari.New(l, dispatcher, cfg.PluginConfig("ari"))
	if err != nil {
		return err
	}
	if err := app.Container.RegisterPlugin("ari", asterisk); err != nil {
		return err
	}

	if err := app.Container.Initialize(ctx); err != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(err, app.Container.Shutdown(sctx))
	}

	var srv *nethttp.Server
	if cfg.HTTP.Addr != "" {
		// Simulated calls must not reach the call-record store
		simulator := engine.NewSimulator(engine.NewInterpreter(l, executor, nil, opts))
		srv = newDebugServer(l, cfg.HTTP.Addr, app, simulator)
	}

	<-ctx.Done()
	l.Info("Shutting down", "active_calls", dispatcher.Active())

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		errs = append(errs, srv.Shutdown(sctx))
	}
	errs = append(errs, app.Container.Shutdown(sctx))
	dispatcher.Wait()
	return errors.Join(errs...)
}

func newApp(l *slog.Logger, cfg *runtime.Config) (*runtime.App, error) {
	app := runtime.NewApp()
	if cfg.Flows.Dir != "" {
		if err := app.LoadDir(cfg.Flows.Dir, loader.NewFileLoader(cfg.Engine.DefaultLanguage)); err != nil {
			return nil, fmt.Errorf("load flows: %w", err)
		}
	}
	l.Info("Flows loaded", "dir", cfg.Flows.Dir, "count", len(app.Flows()))

	if cfg.Flows.PlatformURL != "" {
		app.SetFallback(loader.NewRemoteLoader(l, cfg.Flows, cfg.Engine.DefaultLanguage))
		l.Info("Remote flow lookup enabled", "platform_url", cfg.Flows.PlatformURL)
	}
	return app, nil
}

func newDebugServer(l *slog.Logger, addr string, app *runtime.App, simulator runtime.Simulator) *nethttp.Server {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	runtime.NewHttpHandler(app, simulator, g)

	srv := &nethttp.Server{Addr: addr, Handler: g}
	go func() {
		l.Info("Debug HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			l.Error("Debug HTTP server failed", "error", err)
		}
	}()
	return srv
}
